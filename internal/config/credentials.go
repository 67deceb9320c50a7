package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// S3Credentials is the object-store credentials file layout.
type S3Credentials struct {
	AccessKey  string `json:"accessKey"`
	SecretKey  string `json:"secretKey"`
	BucketName string `json:"bucketName"`
	Region     string `json:"region"`
}

// String never prints the secret.
func (c S3Credentials) String() string {
	return fmt.Sprintf("S3Credentials{bucket=%s region=%s}", c.BucketName, c.Region)
}

// IntervalsCredentials is the fitness platform credentials file layout.
type IntervalsCredentials struct {
	AthleteID string `json:"athlete_id"`
	APIKey    string `json:"api_key"`
}

func (c IntervalsCredentials) String() string {
	return fmt.Sprintf("IntervalsCredentials{athlete=%s}", c.AthleteID)
}

func readCredentials(path string, v any) error {
	cleanPath := filepath.Clean(path)
	info, err := os.Stat(cleanPath)
	if err != nil {
		return fmt.Errorf("failed to stat credentials file: %w", err)
	}
	if info.Size() > maxFileSize {
		return fmt.Errorf("credentials file too large: %d bytes", info.Size())
	}
	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return fmt.Errorf("failed to read credentials file: %w", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to parse credentials %s: %w", filepath.Base(cleanPath), err)
	}
	return nil
}

// LoadS3Credentials reads {accessKey, secretKey, bucketName, region}.
func LoadS3Credentials(path string) (S3Credentials, error) {
	var c S3Credentials
	if err := readCredentials(path, &c); err != nil {
		return S3Credentials{}, err
	}
	if c.BucketName == "" {
		return S3Credentials{}, invalid("%s: bucketName is required", filepath.Base(path))
	}
	return c, nil
}

// LoadIntervalsCredentials reads {"intervals_icu": {athlete_id, api_key}}.
func LoadIntervalsCredentials(path string) (IntervalsCredentials, error) {
	var doc struct {
		Intervals IntervalsCredentials `json:"intervals_icu"`
	}
	if err := readCredentials(path, &doc); err != nil {
		return IntervalsCredentials{}, err
	}
	if doc.Intervals.AthleteID == "" || doc.Intervals.APIKey == "" {
		return IntervalsCredentials{}, invalid("%s: intervals_icu.athlete_id and api_key are required", filepath.Base(path))
	}
	return doc.Intervals, nil
}

// ResolveIntervals merges inline settings with the credentials file; inline
// values win.
func (c *Config) ResolveIntervals() (IntervalsConfig, error) {
	out := c.Intervals
	if out.CredentialsFile != "" && (out.AthleteID == "" || out.APIKey == "") {
		creds, err := LoadIntervalsCredentials(out.CredentialsFile)
		if err != nil {
			return IntervalsConfig{}, err
		}
		if out.AthleteID == "" {
			out.AthleteID = creds.AthleteID
		}
		if out.APIKey == "" {
			out.APIKey = creds.APIKey
		}
	}
	if out.AthleteID == "" || out.APIKey == "" {
		return IntervalsConfig{}, invalid("intervals: athlete_id and api_key are required")
	}
	return out, nil
}

// ResolveS3 merges inline settings with the credentials file. Keys are only
// returned when a credentials file supplies them; otherwise the default AWS
// credential chain applies.
func (c *Config) ResolveS3() (S3Config, S3Credentials, error) {
	out := c.S3
	var creds S3Credentials
	if out.CredentialsFile != "" {
		var err error
		if creds, err = LoadS3Credentials(out.CredentialsFile); err != nil {
			return S3Config{}, S3Credentials{}, err
		}
		if out.Bucket == "" {
			out.Bucket = creds.BucketName
		}
		if out.Region == "" {
			out.Region = creds.Region
		}
	}
	if out.Bucket == "" {
		return S3Config{}, S3Credentials{}, invalid("s3: bucket is required")
	}
	return out, creds, nil
}
