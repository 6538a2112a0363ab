package classify

import "testing"

func TestCategory(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		want string
	}{
		{"nginx.service", "Web Server"},
		{"haproxy.service", "Web Server"},
		{"postgresql@15-main.service", "Database"},
		{"redis-server.service", "NoSQL Database"},
		{"varnish-cache.service", "Cache"},
		{"docker.service", "Container"},
		{"rabbitmq-server.service", "Message Broker"},
		{"prometheus-node-exporter.service", "Monitoring"},
		{"jenkins.service", "CI/CD"},
		{"fail2ban.service", "Security"},
		{"wireguard-wg0.service", "Network"},
		{"minio.service", "Storage"},
		{"elasticsearch.service", "Search"},
		{"tomcat9.service", "Runtime"},
		{"airflow-scheduler.service", "Stream Processing"},
		{"jupyter-lab.service", "Machine Learning"},
		{"jellyfin.service", "Media"},
		{"ssh.service", "System"},
		{"gitea.service", "Version Control"},
		{"mycustomapp.service", "Other"},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := Category(tc.name); got != tc.want {
				t.Fatalf("Category(%q) = %q, want %q", tc.name, got, tc.want)
			}
		})
	}
}

func TestCategoryOrderingIsSpecificFirst(t *testing.T) {
	t.Parallel()

	// redis matches both the NoSQL and Cache rules; the earlier rule wins.
	if got := Category("redis.service"); got != "NoSQL Database" {
		t.Fatalf("Category(redis) = %q, want NoSQL Database", got)
	}
}

func TestDescribe(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		want string
	}{
		{"mysql.service", "Database service"},
		{"nginx.service", "Web server"},
		{"memcached.service", "Cache service"},
		{"openvpn-client@office.service", "VPN service"},
		{"chronyd.service", "Time synchronization service"},
		{"frobnicator.service", "System service: frobnicator.service"},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := Describe(tc.name); got != tc.want {
				t.Fatalf("Describe(%q) = %q, want %q", tc.name, got, tc.want)
			}
		})
	}
}
