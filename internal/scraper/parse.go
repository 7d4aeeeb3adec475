package scraper

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// trialRef is one trial as discovered on a search results page: the summary
// card fields plus the links needed to harvest the rest.
type trialRef struct {
	EudractNumber string
	Card          map[string]any
	ProtocolURLs  []string
	ResultsURL    string
}

// Search result tables label their fields inline ("EudraCT Number: ...").
var searchCardLabels = map[string]string{
	"EudraCT Number": "eudract_number",
	"Start Date":     "start_date",
	"Sponsor Name":   "sponsor_name",
	"Full Title":     "full_title",
}

var diseaseLabels = map[string]string{
	"Disease (MedDRA) version": "version",
	"SOC Term":                 "soc_term",
	"Classification Code":      "classification_code",
	"Term":                     "term",
	"Level":                    "level",
}

func searchURL(base *url.URL, dateFrom, dateTo string, pageNum int) string {
	ref := &url.URL{Path: "ctr-search/search"}
	u := base.ResolveReference(ref)
	q := url.Values{}
	q.Set("query", "")
	q.Set("dateFrom", dateFrom)
	q.Set("dateTo", dateTo)
	q.Set("page", fmt.Sprintf("%d", pageNum))
	u.RawQuery = q.Encode()
	return u.String()
}

// parseSearchPage extracts one trialRef per result table. Result tables with
// no EudraCT number are skipped.
func parseSearchPage(base *url.URL, body []byte) ([]trialRef, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse search page: %w", err)
	}

	var refs []trialRef
	doc.Find("table.result").Each(func(_ int, res *goquery.Selection) {
		card := map[string]any{}
		disease := map[string]any{}
		res.Find("td").Each(func(_ int, td *goquery.Selection) {
			label, value, ok := splitLabel(td.Text())
			if !ok {
				return
			}
			if key, ok := searchCardLabels[label]; ok {
				card[key] = value
				return
			}
			if key, ok := diseaseLabels[label]; ok {
				disease[key] = value
			}
		})

		eudract, _ := card["eudract_number"].(string)
		if eudract == "" {
			return
		}
		if len(disease) > 0 {
			card["disease"] = disease
		}

		ref := trialRef{EudractNumber: eudract, Card: card}
		res.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
			href, _ := a.Attr("href")
			resolved := resolveURL(base, href)
			if resolved == "" || !strings.Contains(resolved, "/ctr-search/trial/") {
				return
			}
			if strings.HasSuffix(resolved, "/results") {
				ref.ResultsURL = resolved
				return
			}
			ref.ProtocolURLs = append(ref.ProtocolURLs, resolved)
		})
		refs = append(refs, ref)
	})
	return refs, nil
}

// parseProtocolPage walks a country protocol page's rows into nested section
// maps ({section: {label: [values]}}) and picks up the document archive link.
// A page without an archive link is valid; the trial simply has no document
// for that protocol.
func parseProtocolPage(base *url.URL, body []byte) (map[string]any, string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, "", fmt.Errorf("parse protocol page: %w", err)
	}

	sections := map[string]any{}
	var current string
	doc.Find("tr").Each(func(_ int, tr *goquery.Selection) {
		if tr.HasClass("section") {
			current = strings.TrimSpace(tr.Text())
			return
		}
		label := strings.TrimSpace(tr.Find("td.second").First().Text())
		value := strings.TrimSpace(tr.Find("td.third").First().Text())
		if current == "" || label == "" || value == "" {
			return
		}
		section, _ := sections[current].(map[string]any)
		if section == nil {
			section = map[string]any{}
			sections[current] = section
		}
		values, _ := section[label].([]any)
		section[label] = append(values, any(value))
	})

	var archiveURL string
	doc.Find("a[href]").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		href, _ := a.Attr("href")
		if strings.Contains(href, "download") {
			archiveURL = resolveURL(base, href)
			return false
		}
		return true
	})
	return sections, archiveURL, nil
}

// parseResultsPage maps result-set version labels to their summary document
// URL. A version row without a summary link still gets an entry so the
// normalizer can report it.
func parseResultsPage(base *url.URL, body []byte) (map[string]any, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse results page: %w", err)
	}

	versions := map[string]any{}
	doc.Find("table.versions tr").Each(func(_ int, tr *goquery.Selection) {
		label := strings.TrimSpace(tr.Find("td.version").First().Text())
		if label == "" {
			return
		}
		summary := map[string]any{}
		if href, ok := tr.Find("a[href]").First().Attr("href"); ok {
			if resolved := resolveURL(base, href); resolved != "" {
				summary["url"] = resolved
			}
		}
		versions[label] = map[string]any{"summary": summary}
	})
	return versions, nil
}

// splitLabel cuts "Label: value" text into its parts.
func splitLabel(text string) (label, value string, ok bool) {
	label, value, ok = strings.Cut(text, ":")
	if !ok {
		return "", "", false
	}
	return strings.TrimSpace(label), strings.TrimSpace(value), true
}

func resolveURL(base *url.URL, href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	return base.ResolveReference(ref).String()
}
