package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog/log"
)

const (
	// ExportFetchTimeout is the HTTP timeout for downloading an export
	ExportFetchTimeout = 30 * time.Second

	// ExportFetchRetries is the number of download attempts
	ExportFetchRetries = 2

	// NovelConsensusTier is the consensus tier assigned to novel proposals
	NovelConsensusTier = "novel"
)

// ExportedMegaMotion is a mega-motion as written by the upstream Consolidator
type ExportedMegaMotion struct {
	ID                   string   `json:"id"`
	Title                string   `json:"title"`
	Theme                string   `json:"theme"`
	ConsolidatedText     string   `json:"consolidated_text"`
	SourceMotionIDs      []string `json:"source_motion_ids"`
	AllSupportingArchons []string `json:"all_supporting_archons"`
	UniqueArchonCount    int      `json:"unique_archon_count"`
	ConsensusTier        string   `json:"consensus_tier"`
	Constitutional       bool     `json:"constitutional,omitempty"`
}

// ExportedNovelProposal is a single-member proposal as written by the Consolidator
type ExportedNovelProposal struct {
	ProposalID       string `json:"proposal_id"`
	Text             string `json:"text"`
	Category         string `json:"category"`
	RecommendationID string `json:"recommendation_id"`
	ArchonName       string `json:"archon_name"`
}

// MotionExport is the Consolidator export consumed by the pipeline.
// RatificationBallots is optional and keyed by motion id, then member name.
type MotionExport struct {
	MegaMotions         []ExportedMegaMotion               `json:"mega_motions"`
	NovelProposals      []ExportedNovelProposal            `json:"novel_proposals"`
	RatificationBallots map[string]map[string]BallotChoice `json:"ratification_ballots,omitempty"`
}

// LoadMotionExport reads an export from disk
func LoadMotionExport(path string) (*MotionExport, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &InputMissingError{Input: "motion export", Err: err}
		}
		return nil, fmt.Errorf("failed to read motion export: %w", err)
	}
	return ParseMotionExport(data)
}

// ParseMotionExport decodes an export document
func ParseMotionExport(data []byte) (*MotionExport, error) {
	var export MotionExport
	if err := json.Unmarshal(data, &export); err != nil {
		return nil, fmt.Errorf("failed to parse motion export: %w", err)
	}
	return &export, nil
}

// FetchMotionExport downloads an export over HTTP, retrying once on transport errors
func FetchMotionExport(ctx context.Context, url string) (*MotionExport, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	client := &http.Client{
		Timeout: ExportFetchTimeout,
	}

	var resp *http.Response
	for attempt := 0; attempt < ExportFetchRetries; attempt++ {
		resp, err = client.Do(req)
		if err == nil {
			break
		}
		if attempt < ExportFetchRetries-1 {
			log.Warn().Int("attempt", attempt+1).Err(err).Msg("export download failed, retrying")
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(2 * time.Second):
			}
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch export after %d attempts: %w", ExportFetchRetries, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, &InputMissingError{Input: "motion export", Err: fmt.Errorf("%s returned 404", url)}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code %d for export", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read export body: %w", err)
	}
	return ParseMotionExport(data)
}

// Motions converts the export into immutable pipeline inputs: mega-motions
// first, then novel proposals, each in export order.
func (e *MotionExport) Motions() []MegaMotion {
	motions := make([]MegaMotion, 0, len(e.MegaMotions)+len(e.NovelProposals))

	for _, m := range e.MegaMotions {
		motions = append(motions, MegaMotion{
			ID:                   m.ID,
			Title:                strings.TrimSpace(m.Title),
			Theme:                strings.TrimSpace(m.Theme),
			Text:                 NormalizeMotionText(m.ConsolidatedText),
			SourceMotionIDs:      append([]string{}, m.SourceMotionIDs...),
			SupportingMembers:    append([]string{}, m.AllSupportingArchons...),
			UniqueSupporterCount: m.UniqueArchonCount,
			ConsensusTier:        m.ConsensusTier,
			Constitutional:       m.Constitutional,
		})
	}

	for _, p := range e.NovelProposals {
		sources := []string{}
		if p.RecommendationID != "" {
			sources = append(sources, p.RecommendationID)
		}
		supporters := []string{}
		if p.ArchonName != "" {
			supporters = append(supporters, p.ArchonName)
		}
		motions = append(motions, MegaMotion{
			ID:                   p.ProposalID,
			Title:                novelTitle(p),
			Theme:                strings.TrimSpace(p.Category),
			Text:                 NormalizeMotionText(p.Text),
			SourceMotionIDs:      sources,
			SupportingMembers:    supporters,
			UniqueSupporterCount: len(supporters),
			ConsensusTier:        NovelConsensusTier,
			IsNovel:              true,
		})
	}

	return motions
}

// Validate checks the parts of an export the pipeline cannot run without
func (e *MotionExport) Validate() error {
	if e == nil || (len(e.MegaMotions) == 0 && len(e.NovelProposals) == 0) {
		return &InputMissingError{Input: "motion export"}
	}

	seen := make(map[string]bool)
	for i, m := range e.MegaMotions {
		if strings.TrimSpace(m.ID) == "" {
			return fmt.Errorf("mega motion %d has no id", i)
		}
		if seen[m.ID] {
			return fmt.Errorf("duplicate motion id %q", m.ID)
		}
		seen[m.ID] = true
	}
	for i, p := range e.NovelProposals {
		if strings.TrimSpace(p.ProposalID) == "" {
			return fmt.Errorf("novel proposal %d has no proposal_id", i)
		}
		if seen[p.ProposalID] {
			return fmt.Errorf("duplicate motion id %q", p.ProposalID)
		}
		seen[p.ProposalID] = true
	}
	for motionID := range e.RatificationBallots {
		if !seen[motionID] {
			return fmt.Errorf("ballots for unknown motion %q", motionID)
		}
	}
	return nil
}

func novelTitle(p ExportedNovelProposal) string {
	if c := strings.TrimSpace(p.Category); c != "" {
		return fmt.Sprintf("Novel proposal (%s)", c)
	}
	return "Novel proposal"
}

var whitespaceRun = regexp.MustCompile(`[ \t\f\r]+`)
var blankLines = regexp.MustCompile(`\n{3,}`)

// NormalizeMotionText converts HTML-formatted motion text into plain text.
// Plain text passes through with whitespace tidied.
func NormalizeMotionText(text string) string {
	text = strings.TrimSpace(text)
	if text == "" || !strings.Contains(text, "<") {
		return tidyWhitespace(text)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(text))
	if err != nil {
		return tidyWhitespace(text)
	}

	doc.Find("script, style").Remove()
	doc.Find("br").ReplaceWithHtml("\n")
	doc.Find("p, div, li, h1, h2, h3, h4, h5, h6, tr").Each(func(i int, s *goquery.Selection) {
		s.AppendHtml("\n")
	})
	doc.Find("li").Each(func(i int, s *goquery.Selection) {
		s.PrependHtml("- ")
	})

	return tidyWhitespace(doc.Text())
}

func tidyWhitespace(text string) string {
	text = strings.ReplaceAll(text, "\u00a0", " ")
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(whitespaceRun.ReplaceAllString(line, " "))
	}
	text = strings.Join(lines, "\n")
	text = blankLines.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}
