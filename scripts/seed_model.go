// seed_model.go — standalone script to apply a calibration file as a new
// draft model version via the Verdict admin API.
//
// The file lists score/threshold overrides relative to a base version; the
// script creates the draft, patches the listed bins, tiers and rules, and
// optionally publishes.
//
// Usage:
//
//	go run scripts/seed_model.go -file calibration.yaml -api http://localhost:8700 -actor risk-ops -token $VERDICT_ADMIN_TOKEN -publish
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"

	"gopkg.in/yaml.v3"
)

type calibrationFile struct {
	VersionID   string                 `yaml:"version_id"`
	BaseVersion string                 `yaml:"base_version"`
	Description string                 `yaml:"description"`
	Factors     map[string]factorEntry `yaml:"factors"`
	Tiers       map[string]tierEntry   `yaml:"tiers"`
	Rules       map[string]ruleEntry   `yaml:"rules"`
}

type factorEntry struct {
	Weight  *float64   `yaml:"weight"`
	Enabled *bool      `yaml:"enabled"`
	Bins    []binEntry `yaml:"bins"`
}

type binEntry struct {
	BinOrder int      `yaml:"bin_order"`
	RawScore *float64 `yaml:"raw_score"`
}

type tierEntry struct {
	MinScore    *float64 `yaml:"min_score"`
	Decision    *string  `yaml:"decision"`
	EstimatedPD *float64 `yaml:"estimated_pd"`
}

type ruleEntry struct {
	Enabled        *bool   `yaml:"enabled"`
	ConditionValue *string `yaml:"condition_value"`
	ForcedDecision *string `yaml:"forced_decision"`
}

// Minimal mirrors of the admin API response rows; only the fields the
// script needs to resolve ids.
type binRow struct {
	ID       int64 `json:"id"`
	BinOrder int   `json:"bin_order"`
}

type tierRow struct {
	ID       int64  `json:"id"`
	TierName string `json:"tier_name"`
}

func main() {
	filePath := flag.String("file", "calibration.yaml", "path to calibration file")
	apiURL := flag.String("api", "http://localhost:8700", "Verdict API base URL")
	actor := flag.String("actor", "seed-script", "X-Caller-ID header value")
	token := flag.String("token", "", "admin bearer token")
	publish := flag.Bool("publish", false, "publish the draft after applying")
	dryRun := flag.Bool("dry-run", false, "print the plan without posting")
	flag.Parse()

	data, err := os.ReadFile(*filePath)
	if err != nil {
		log.Fatalf("read calibration file: %v", err)
	}
	var cal calibrationFile
	if err := yaml.Unmarshal(data, &cal); err != nil {
		log.Fatalf("parse calibration file: %v", err)
	}
	if cal.VersionID == "" {
		log.Fatal("version_id is required")
	}

	if *dryRun {
		printPlan(&cal, *publish)
		return
	}

	c := &apiClient{base: *apiURL, actor: *actor, token: *token, http: &http.Client{}}

	log.Printf("creating draft %s (base %s)", cal.VersionID, cal.BaseVersion)
	if err := c.post("/api/v1/admin/versions", map[string]string{
		"version_id":   cal.VersionID,
		"base_version": cal.BaseVersion,
		"description":  cal.Description,
	}, http.StatusCreated); err != nil {
		log.Fatalf("create draft: %v", err)
	}

	patched := 0
	for name, f := range cal.Factors {
		if f.Weight != nil || f.Enabled != nil {
			patch := map[string]interface{}{}
			if f.Weight != nil {
				patch["weight"] = *f.Weight
			}
			if f.Enabled != nil {
				patch["enabled"] = *f.Enabled
			}
			if err := c.patch(fmt.Sprintf("/api/v1/admin/versions/%s/factors/%s", cal.VersionID, name), patch); err != nil {
				log.Fatalf("patch factor %s: %v", name, err)
			}
			patched++
		}
		if len(f.Bins) == 0 {
			continue
		}

		var bins []binRow
		if err := c.get(fmt.Sprintf("/api/v1/admin/versions/%s/factors/%s/bins", cal.VersionID, name), &bins); err != nil {
			log.Fatalf("list bins for %s: %v", name, err)
		}
		byOrder := make(map[int]int64, len(bins))
		for _, b := range bins {
			byOrder[b.BinOrder] = b.ID
		}

		for _, b := range f.Bins {
			id, ok := byOrder[b.BinOrder]
			if !ok {
				log.Fatalf("factor %s has no bin with bin_order %d", name, b.BinOrder)
			}
			if b.RawScore == nil {
				continue
			}
			if err := c.patch(fmt.Sprintf("/api/v1/admin/versions/%s/bins/%d", cal.VersionID, id), map[string]interface{}{
				"raw_score": *b.RawScore,
			}); err != nil {
				log.Fatalf("patch bin %s/%d: %v", name, b.BinOrder, err)
			}
			patched++
		}
	}

	if len(cal.Tiers) > 0 {
		var tiers []tierRow
		if err := c.get(fmt.Sprintf("/api/v1/admin/versions/%s/tiers", cal.VersionID), &tiers); err != nil {
			log.Fatalf("list tiers: %v", err)
		}
		byName := make(map[string]int64, len(tiers))
		for _, t := range tiers {
			byName[t.TierName] = t.ID
		}

		for name, t := range cal.Tiers {
			id, ok := byName[name]
			if !ok {
				log.Fatalf("version has no tier %s", name)
			}
			patch := map[string]interface{}{}
			if t.MinScore != nil {
				patch["min_score"] = *t.MinScore
			}
			if t.Decision != nil {
				patch["decision"] = *t.Decision
			}
			if t.EstimatedPD != nil {
				patch["estimated_pd"] = *t.EstimatedPD
			}
			if len(patch) == 0 {
				continue
			}
			if err := c.patch(fmt.Sprintf("/api/v1/admin/versions/%s/tiers/%d", cal.VersionID, id), patch); err != nil {
				log.Fatalf("patch tier %s: %v", name, err)
			}
			patched++
		}
	}

	for code, rule := range cal.Rules {
		patch := map[string]interface{}{}
		if rule.Enabled != nil {
			patch["enabled"] = *rule.Enabled
		}
		if rule.ConditionValue != nil {
			patch["condition_value"] = *rule.ConditionValue
		}
		if rule.ForcedDecision != nil {
			patch["forced_decision"] = *rule.ForcedDecision
		}
		if len(patch) == 0 {
			continue
		}
		if err := c.patch(fmt.Sprintf("/api/v1/admin/versions/%s/rules/%s", cal.VersionID, code), patch); err != nil {
			log.Fatalf("patch rule %s: %v", code, err)
		}
		patched++
	}

	log.Printf("draft %s ready: %d fields patched", cal.VersionID, patched)

	if *publish {
		if err := c.post(fmt.Sprintf("/api/v1/admin/versions/%s/publish", cal.VersionID), nil, http.StatusOK); err != nil {
			log.Fatalf("publish: %v", err)
		}
		log.Printf("published %s", cal.VersionID)
	}
}

func printPlan(cal *calibrationFile, publish bool) {
	fmt.Printf("draft %s from base %s\n", cal.VersionID, cal.BaseVersion)
	for name, f := range cal.Factors {
		for _, b := range f.Bins {
			if b.RawScore != nil {
				fmt.Printf("  bin %s/%d -> raw_score %.2f\n", name, b.BinOrder, *b.RawScore)
			}
		}
	}
	for name, t := range cal.Tiers {
		if t.MinScore != nil {
			fmt.Printf("  tier %s -> min_score %.2f\n", name, *t.MinScore)
		}
	}
	for code, r := range cal.Rules {
		if r.Enabled != nil {
			fmt.Printf("  rule %s -> enabled %v\n", code, *r.Enabled)
		}
		if r.ConditionValue != nil {
			fmt.Printf("  rule %s -> condition_value %s\n", code, *r.ConditionValue)
		}
	}
	if publish {
		fmt.Println("  then publish")
	}
}

type apiClient struct {
	base  string
	actor string
	token string
	http  *http.Client
}

func (c *apiClient) do(method, path string, body interface{}) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequest(method, c.base+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Caller-ID", c.actor)
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return c.http.Do(req)
}

func (c *apiClient) post(path string, body interface{}, want int) error {
	resp, err := c.do("POST", path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != want {
		msg, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("status %d: %s", resp.StatusCode, string(msg))
	}
	return nil
}

func (c *apiClient) patch(path string, body interface{}) error {
	resp, err := c.do("PATCH", path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("status %d: %s", resp.StatusCode, string(msg))
	}
	return nil
}

func (c *apiClient) get(path string, out interface{}) error {
	resp, err := c.do("GET", path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("status %d: %s", resp.StatusCode, string(msg))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
