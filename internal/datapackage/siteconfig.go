package datapackage

import (
	"gopkg.in/yaml.v3"

	"git.home.luguber.info/inful/datapub/internal/dataset"
)

// SiteConfig is the persisted _config.yml artifact driving the static site.
type SiteConfig struct {
	DataDir         string `yaml:"data_dir,omitempty"`
	DataSource      string `yaml:"data_source,omitempty"`
	UpdateFrequency string `yaml:"update_frequency"`
	Permalink       string `yaml:"permalink,omitempty"`
	CertificateURL  string `yaml:"certificate_url,omitempty"`
}

// NewSiteConfig builds the initial site configuration for a dataset.
func NewSiteConfig(ds *dataset.Dataset) SiteConfig {
	return SiteConfig{
		DataDir:         ".",
		UpdateFrequency: ds.Frequency,
		Permalink:       "pretty",
	}
}

// CertifiedSiteConfig builds the site configuration carrying the certificate
// badge reference.
func CertifiedSiteConfig(ds *dataset.Dataset) SiteConfig {
	return SiteConfig{
		DataSource:      ".",
		UpdateFrequency: ds.Frequency,
		CertificateURL:  ds.CertificateURL + "/badge.js",
	}
}

// YAML serializes the site configuration.
func (c SiteConfig) YAML() ([]byte, error) {
	return yaml.Marshal(c)
}
