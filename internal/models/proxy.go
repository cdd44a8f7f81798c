package models

import "time"

// Proxy mirrors a reverse proxy configuration committed on the daemon. The
// daemon is the source of truth; this row is written after confirmation.
type Proxy struct {
	ID       uint   `gorm:"column:id;primaryKey" json:"id"`
	ServerID uint   `gorm:"column:server_id;not null;index" json:"server_id"`
	Domain   string `gorm:"column:domain;size:253;not null" json:"domain"`
	IP       string `gorm:"column:ip;size:50;not null" json:"ip"`
	Port     int    `gorm:"column:port;not null" json:"port"`

	SSL            bool   `gorm:"column:ssl;default:false" json:"ssl"`
	UseLetsEncrypt bool   `gorm:"column:use_lets_encrypt;default:false" json:"use_lets_encrypt"`
	ClientEmail    string `gorm:"column:client_email;size:255" json:"client_email"`
	SSLCert        string `gorm:"column:ssl_cert;type:text" json:"-"`
	SSLKey         string `gorm:"column:ssl_key;type:text" json:"-"`

	CreatedAt time.Time `gorm:"column:created_at" json:"created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at" json:"updated_at"`
}

func (Proxy) TableName() string {
	return "server_proxies"
}

// FirewallRuleType is the action a rule applies to matching traffic.
type FirewallRuleType string

const (
	FirewallRuleAllow FirewallRuleType = "allow"
	FirewallRuleBlock FirewallRuleType = "block"
)

// FirewallRule mirrors a daemon-side firewall rule. Written after the
// daemon confirms the rule; DaemonRuleID is the daemon's identifier used
// for updates and deletes.
type FirewallRule struct {
	ID           uint `gorm:"column:id;primaryKey" json:"id"`
	ServerID     uint `gorm:"column:server_id;not null;index" json:"server_id"`
	DaemonRuleID int  `gorm:"column:daemon_rule_id;not null" json:"daemon_rule_id"`

	RemoteIP   string           `gorm:"column:remote_ip;size:100;not null" json:"remote_ip"`
	ServerPort int              `gorm:"column:server_port;not null" json:"server_port"`
	Priority   int              `gorm:"column:priority;default:1" json:"priority"`
	Type       FirewallRuleType `gorm:"column:type;size:10;not null" json:"type"`
	Protocol   string           `gorm:"column:protocol;size:10;default:tcp" json:"protocol"`

	CreatedAt time.Time `gorm:"column:created_at" json:"created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at" json:"updated_at"`
}

func (FirewallRule) TableName() string {
	return "server_firewall_rules"
}
