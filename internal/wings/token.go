package wings

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/mythicalltd/featherpanel/internal/models"
)

// MaxTokenTTL caps every daemon token regardless of what the caller asks
// for. Tokens are issued fresh per action, so short lifetimes cost nothing.
const MaxTokenTTL = 600 * time.Second

// DefaultTokenTTL is used when a request does not specify a lifetime.
const DefaultTokenTTL = 300 * time.Second

// Token purposes carried in the purpose claim.
const (
	PurposeAPI       = "api"
	PurposeWebsocket = "websocket"
	PurposeDownload  = "download"
	PurposeTransfer  = "transfer"
)

// ErrNoDaemonToken means the node has no shared secret configured and no
// token can be signed for it.
var ErrNoDaemonToken = errors.New("node has no daemon token configured")

// TokenRequest describes a scoped daemon token to be issued.
type TokenRequest struct {
	ServerUUID   string
	UserUUID     string
	Permissions  []string
	ResourceUUID string
	Purpose      string
	TTL          time.Duration
}

// tokenClaims is the wire shape of a daemon token.
type tokenClaims struct {
	ServerUUID   string   `json:"server_uuid"`
	UserUUID     string   `json:"user_uuid,omitempty"`
	Permissions  []string `json:"permissions,omitempty"`
	ResourceUUID string   `json:"resource_uuid,omitempty"`
	Purpose      string   `json:"purpose,omitempty"`
	jwt.RegisteredClaims
}

// Issuer signs short-lived HS256 tokens the daemon verifies with the
// node's shared secret. The panel URL goes in the issuer claim and the
// node's base URL in the audience claim so a token leaked from one node
// is useless on another.
type Issuer struct {
	panelURL string
}

func NewIssuer(panelURL string) *Issuer {
	return &Issuer{panelURL: strings.TrimRight(panelURL, "/")}
}

// Issue signs a token for the given node. The TTL is clamped to
// MaxTokenTTL and defaults to DefaultTokenTTL when unset.
func (i *Issuer) Issue(node *models.Node, req TokenRequest) (string, error) {
	if node == nil || node.DaemonToken == "" {
		return "", ErrNoDaemonToken
	}

	ttl := req.TTL
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	if ttl > MaxTokenTTL {
		ttl = MaxTokenTTL
	}

	now := time.Now()
	claims := tokenClaims{
		ServerUUID:   req.ServerUUID,
		UserUUID:     req.UserUUID,
		Permissions:  req.Permissions,
		ResourceUUID: req.ResourceUUID,
		Purpose:      req.Purpose,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.panelURL,
			Audience:  jwt.ClaimStrings{BaseURL(node)},
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(node.DaemonToken))
	if err != nil {
		return "", fmt.Errorf("failed to sign daemon token: %w", err)
	}
	return signed, nil
}

// BaseURL builds the node's daemon HTTP base URL.
func BaseURL(node *models.Node) string {
	return fmt.Sprintf("%s://%s:%d", node.Scheme, node.FQDN, node.DaemonPort)
}

// WebSocketURL issues a websocket token and returns the full connection
// string the browser connects to directly.
func (i *Issuer) WebSocketURL(node *models.Node, serverUUID, userUUID string, perms []string) (string, error) {
	token, err := i.Issue(node, TokenRequest{
		ServerUUID:  serverUUID,
		UserUUID:    userUUID,
		Permissions: perms,
		Purpose:     PurposeWebsocket,
	})
	if err != nil {
		return "", err
	}
	scheme := "ws"
	if node.Scheme == "https" {
		scheme = "wss"
	}
	return fmt.Sprintf("%s://%s:%d/api/servers/%s/ws?token=%s",
		scheme, node.FQDN, node.DaemonPort, serverUUID, url.QueryEscape(token)), nil
}

// BackupDownloadURL issues a download-scoped token and returns a signed
// URL the browser fetches straight from the daemon.
func (i *Issuer) BackupDownloadURL(node *models.Node, serverUUID, backupUUID, userUUID string) (string, error) {
	token, err := i.Issue(node, TokenRequest{
		ServerUUID:   serverUUID,
		UserUUID:     userUUID,
		ResourceUUID: backupUUID,
		Purpose:      PurposeDownload,
	})
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s/download/backup?token=%s&server=%s&backup=%s",
		BaseURL(node), url.QueryEscape(token), serverUUID, backupUUID), nil
}
