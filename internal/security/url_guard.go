// Package security は外部APIに接続する際の安全対策と、
// 外部から受け取った文字列のサニタイズを提供する。
package security

import (
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/doyensec/safeurl"
)

// blockedNetworks は接続先として拒否するネットワーク範囲。
// APIキーをBearerヘッダで送るため、設定ミスで内部ネットワークへ送信しないようにする。
var blockedNetworks []net.IPNet

func init() {
	cidrs := []string{
		"10.0.0.0/8",
		"172.16.0.0/12",
		"192.168.0.0/16",
		"127.0.0.0/8",
		// クラウドメタデータIP (169.254.169.254) を含む
		"169.254.0.0/16",
		"0.0.0.0/8",
		"::1/128",
		"fe80::/10",
		"fc00::/7",
	}
	for _, cidr := range cidrs {
		_, network, err := net.ParseCIDR(cidr)
		if err != nil {
			panic(fmt.Sprintf("invalid CIDR in blockedNetworks: %s: %v", cidr, err))
		}
		blockedNetworks = append(blockedNetworks, *network)
	}
}

// URLGuard はAPIのベースURL検証と、検証済みHTTPクライアントの生成を行う。
type URLGuard struct {
	allowPrivate bool
}

// NewURLGuard はURLGuardの新しいインスタンスを生成する。
// allowPrivateがtrueの場合は学内LANなどのプライベートアドレスとhttpを許可する。
func NewURLGuard(allowPrivate bool) *URLGuard {
	return &URLGuard{allowPrivate: allowPrivate}
}

// NewHTTPClient はAPI呼び出し用のHTTPクライアントを生成する。
// プライベートアドレスを許可しない場合はsafeurlでラップし、
// DNS解決後のIPアドレスもDialerで検証する。
func (g *URLGuard) NewHTTPClient(timeout time.Duration) *http.Client {
	if g.allowPrivate {
		return &http.Client{Timeout: timeout}
	}

	config := safeurl.GetConfigBuilder().
		SetTimeout(timeout).
		SetAllowedSchemes("https").
		SetAllowedPorts(443).
		Build()

	return safeurl.Client(config).Client
}

// ValidateBaseURL はAPIのベースURLを静的に検証する。
// https以外のスキーム、空のホスト、ブロック対象のIPやlocalhostを拒否する。
func (g *URLGuard) ValidateBaseURL(rawURL string) error {
	if rawURL == "" {
		return fmt.Errorf("empty URL")
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}

	scheme := strings.ToLower(parsed.Scheme)
	switch {
	case scheme == "https":
	case scheme == "http" && g.allowPrivate:
	default:
		return fmt.Errorf("disallowed scheme: %q", parsed.Scheme)
	}

	host := parsed.Hostname()
	if host == "" {
		return fmt.Errorf("empty host in URL: %s", rawURL)
	}
	if g.allowPrivate {
		return nil
	}

	if ip := net.ParseIP(host); ip != nil {
		if isBlockedIP(ip) {
			return fmt.Errorf("blocked IP address: %s", ip.String())
		}
		return nil
	}
	if strings.EqualFold(host, "localhost") {
		return fmt.Errorf("blocked host: %s", host)
	}
	return nil
}

// isBlockedIP はIPアドレスがブロック対象のネットワーク範囲に含まれるかを検証する。
func isBlockedIP(ip net.IP) bool {
	for _, network := range blockedNetworks {
		if network.Contains(ip) {
			return true
		}
	}
	return false
}
