// Package classify assigns a category and a fallback description to a
// service by keyword matching on its unit name. Rules are ordered: the
// first matching rule wins, so specific categories sit above generic ones.
package classify

import "strings"

type rule struct {
	label    string
	keywords []string
}

var categories = []rule{
	{"Web Server", []string{"nginx", "apache", "httpd", "lighttpd", "caddy", "traefik", "haproxy", "envoy", "kong", "openresty", "cherokee"}},
	{"Database", []string{"mysql", "postgresql", "mariadb", "sqlite", "oracle", "sqlserver", "cockroachdb", "timescaledb", "clickhouse"}},
	{"NoSQL Database", []string{"mongodb", "cassandra", "couchdb", "neo4j", "redis", "memcached", "hazelcast", "ignite"}},
	{"Cache", []string{"cache", "redis", "memcache", "hazelcast", "ignite"}},
	{"Container", []string{"docker", "containerd", "kubernetes", "rancher", "nomad", "mesos", "swarm", "podman", "buildah", "skopeo", "cri-o"}},
	{"Message Broker", []string{"kafka", "rabbitmq", "activemq", "artemis", "pulsar", "nats", "mosquitto", "emqx", "vernemq", "mq", "queue"}},
	{"Monitoring", []string{"prometheus", "grafana", "jaeger", "zipkin", "datadog", "newrelic", "splunk", "logstash", "filebeat", "metricbeat", "packetbeat", "heartbeat", "monitor", "metric"}},
	{"CI/CD", []string{"jenkins", "gitlab", "github-runner", "teamcity", "bamboo", "drone", "concourse", "gocd", "spinnaker", "argocd", "tekton"}},
	{"Security", []string{"keycloak", "ldap", "kerberos", "saml", "oauth", "cert-manager", "letsencrypt", "fail2ban", "clamav", "snort", "vault"}},
	{"Network", []string{"openvpn", "wireguard", "strongswan", "freeradius", "dnsmasq", "bind9", "unbound", "dhcpd", "ntpd", "chronyd", "dns", "vpn"}},
	{"Storage", []string{"minio", "ceph", "glusterfs", "nfs", "samba", "rsync", "duplicati", "restic", "borg", "rclone", "backup", "sync"}},
	{"Search", []string{"elasticsearch", "solr", "opensearch", "meilisearch", "typesense", "algolia", "sphinx", "lucene", "kibana", "search"}},
	{"Runtime", []string{"tomcat", "jetty", "wildfly", "glassfish", "weblogic", "websphere", "jboss", "spring", "django", "rails", "nodejs", "node"}},
	{"Stream Processing", []string{"storm", "flink", "spark", "beam", "heron", "samza", "flume", "sqoop", "oozie", "airflow", "hive"}},
	{"Machine Learning", []string{"tensorflow", "pytorch", "jupyter", "mlflow", "kubeflow", "tensorboard", "wandb", "dvc", "polyaxon", "sagemaker"}},
	{"Media", []string{"ffmpeg", "gstreamer", "vlc", "plex", "emby", "jellyfin", "kodi", "sonarr", "radarr", "lidarr", "media"}},
	{"System", []string{"cron", "systemd", "udev", "dbus", "avahi", "cups", "bluetooth", "wifi", "network", "firewall", "ssh", "telnet", "ftp", "sftp", "rsyslog", "syslog", "logrotate", "anacron", "atd", "ntp", "chrony", "log", "print", "audio", "pulse", "mail", "smtp", "imap", "pop", "update", "upgrade", "apt", "package", "time"}},
	{"Version Control", []string{"git"}},
}

var descriptions = []rule{
	{"Database service", []string{"db", "sql", "mysql", "postgres"}},
	{"Web server", []string{"web", "http", "nginx", "apache"}},
	{"Cache service", []string{"cache", "redis", "memcache"}},
	{"Message queue service", []string{"mq", "queue", "kafka", "rabbit"}},
	{"Monitoring service", []string{"monitor", "metric", "prometheus", "grafana"}},
	{"Backup service", []string{"backup", "sync", "rsync"}},
	{"VPN service", []string{"vpn", "wireguard", "openvpn"}},
	{"DNS service", []string{"dns", "bind", "unbound"}},
	{"Network service", []string{"dhcp", "network"}},
	{"Mail service", []string{"mail", "smtp", "imap", "pop"}},
	{"File transfer service", []string{"ftp", "sftp", "file"}},
	{"Printing service", []string{"print", "cups"}},
	{"Audio/Bluetooth service", []string{"bluetooth", "audio", "pulse"}},
	{"Remote access service", []string{"ssh", "telnet"}},
	{"Scheduling service", []string{"cron", "timer"}},
	{"Logging service", []string{"log", "syslog", "journal"}},
	{"Time synchronization service", []string{"time", "ntp", "chrony"}},
	{"Firewall service", []string{"firewall", "iptables", "ufw"}},
	{"Package management service", []string{"update", "upgrade", "apt"}},
}

// Category returns the category for a service name, or "Other" when no
// rule matches.
func Category(name string) string {
	lower := strings.ToLower(name)
	for _, r := range categories {
		for _, kw := range r.keywords {
			if strings.Contains(lower, kw) {
				return r.label
			}
		}
	}
	return "Other"
}

// Describe returns a short human description derived from the name. Callers
// should prefer the unit's own Description property when systemd has one.
func Describe(name string) string {
	lower := strings.ToLower(name)
	for _, r := range descriptions {
		for _, kw := range r.keywords {
			if strings.Contains(lower, kw) {
				return r.label
			}
		}
	}
	return "System service: " + name
}
