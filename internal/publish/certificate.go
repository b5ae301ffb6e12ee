package publish

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"git.home.luguber.info/inful/datapub/internal/errors"
)

// CertificateIssuer requests open-data certificates for published sites.
// Issuance is asynchronous: a request is acknowledged as pending, and the
// result becomes available some time later.
type CertificateIssuer interface {
	// Request asks for a certificate for the given site url. It returns
	// true when the request was accepted and is pending.
	Request(ctx context.Context, siteURL string) (pending bool, err error)

	// Result returns the certificate url for the site, or empty when the
	// certificate is not ready yet.
	Result(ctx context.Context, siteURL string) (string, error)
}

// HTTPCertificateIssuer talks to a certificates service over its JSON API.
type HTTPCertificateIssuer struct {
	baseURL string
	client  *http.Client
}

// NewHTTPCertificateIssuer builds an issuer against the given service base
// url.
func NewHTTPCertificateIssuer(baseURL string) *HTTPCertificateIssuer {
	return &HTTPCertificateIssuer{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *HTTPCertificateIssuer) Request(ctx context.Context, siteURL string) (bool, error) {
	body, err := json.Marshal(map[string]string{"url": siteURL})
	if err != nil {
		return false, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/certificates", bytes.NewReader(body))
	if err != nil {
		return false, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return false, errors.WrapRetryable(err, errors.CategoryNetwork, errors.SeverityWarning,
			"requesting certificate")
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return false, errors.Retryable(errors.CategoryNetwork, errors.SeverityWarning,
			fmt.Sprintf("certificate service returned status %d", resp.StatusCode))
	}

	var ack struct {
		Success string `json:"success"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&ack); err != nil {
		return false, errors.Wrap(err, errors.CategoryNetwork, errors.SeverityWarning,
			"decoding certificate acknowledgement")
	}
	return ack.Success == "pending", nil
}

func (c *HTTPCertificateIssuer) Result(ctx context.Context, siteURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/certificates?url="+url.QueryEscape(siteURL), nil)
	if err != nil {
		return "", err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return "", errors.WrapRetryable(err, errors.CategoryNetwork, errors.SeverityWarning,
			"fetching certificate result")
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return "", nil
	}
	if resp.StatusCode >= 300 {
		return "", errors.Retryable(errors.CategoryNetwork, errors.SeverityWarning,
			fmt.Sprintf("certificate service returned status %d", resp.StatusCode))
	}

	var result struct {
		CertificateURL string `json:"certificate_url"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&result); err != nil {
		return "", errors.Wrap(err, errors.CategoryNetwork, errors.SeverityWarning,
			"decoding certificate result")
	}
	return result.CertificateURL, nil
}

// badgeBase strips a trailing .json from the certificate url so the remaining
// base can serve both the human page and the embeddable badge script.
func badgeBase(certificateURL string) string {
	return strings.TrimSuffix(certificateURL, ".json")
}
