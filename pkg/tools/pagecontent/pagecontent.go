// Package pagecontent fetches a web page and extracts the lyrics it contains.
package pagecontent

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/abadojack/whatlanggo"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/net/html/charset"
)

// minTextLength is the number of characters a block needs to count as lyrics.
const minTextLength = 100

type Content struct {
	JapaneseLyrics   *string `json:"japanese_lyrics"`
	RomajiLyrics     *string `json:"romaji_lyrics"`
	Metadata         string  `json:"metadata"`
	DetectedLanguage string  `json:"detected_language,omitempty"`
}

// Lyrics returns the Japanese lyrics if any, the romaji lyrics otherwise.
func (c *Content) Lyrics() string {
	if c.JapaneseLyrics != nil {
		return *c.JapaneseLyrics
	}
	if c.RomajiLyrics != nil {
		return *c.RomajiLyrics
	}
	return ""
}

type Fetcher struct {
	httpClient *http.Client
	userAgent  string
}

func NewFetcher(httpClient *http.Client, userAgent string) *Fetcher {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Fetcher{httpClient: httpClient, userAgent: userAgent}
}

type Input struct {
	URL string `json:"url" jsonschema:"description=URL of a page found by search_web_serp"`
}

// Tool is the get_page_content tool.
func (f *Fetcher) Tool(ctx context.Context, in Input) (*Content, error) {
	return f.Fetch(ctx, in.URL)
}

// Fetch downloads url and extracts lyrics. A non-200 answer is not an error:
// it yields empty lyrics and the status in Metadata.
func (f *Fetcher) Fetch(ctx context.Context, url string) (*Content, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return nil, errors.New("url cannot be empty")
	}

	log.Info().Str("url", url).Msg("pagecontent: fetching")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create request")
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "failed to fetch page")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg := fmt.Sprintf("Error: HTTP %d", resp.StatusCode)
		log.Warn().Str("url", url).Int("status", resp.StatusCode).Msg("pagecontent: unexpected status")
		return &Content{Metadata: msg}, nil
	}

	body, err := charset.NewReader(resp.Body, resp.Header.Get("Content-Type"))
	if err != nil {
		return nil, errors.Wrap(err, "failed to decode page")
	}
	doc, err := goquery.NewDocumentFromReader(body)
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse page")
	}

	ret := Extract(doc)
	ret.Metadata = fmt.Sprintf("Extracted from %s", url)

	log.Info().
		Str("url", url).
		Bool("japanese", ret.JapaneseLyrics != nil).
		Bool("romaji", ret.RomajiLyrics != nil).
		Str("language", ret.DetectedLanguage).
		Msg("pagecontent: extracted")
	return ret, nil
}

// Extract looks for lyrics in blocks whose class mentions lyrics or text
// first, and in any block otherwise. Within each tag the first block long
// enough is classified and the rest are skipped.
func Extract(doc *goquery.Document) *Content {
	ret := &Content{}

	scan := func(filter func(*goquery.Selection) bool) {
		for _, tag := range []string{"div", "p"} {
			doc.Find(tag).EachWithBreak(func(_ int, s *goquery.Selection) bool {
				if filter != nil && !filter(s) {
					return true
				}
				text := CleanText(s.Text())
				if utf8.RuneCountInString(text) <= minTextLength {
					return true
				}
				if IsPrimarilyJapanese(text) {
					ret.JapaneseLyrics = &text
				} else if IsPrimarilyRomaji(text) {
					ret.RomajiLyrics = &text
				}
				return false
			})
			if ret.JapaneseLyrics != nil && ret.RomajiLyrics != nil {
				return
			}
		}
	}

	scan(func(s *goquery.Selection) bool {
		class := strings.ToLower(s.AttrOr("class", ""))
		return strings.Contains(class, "lyrics") || strings.Contains(class, "text")
	})
	if ret.JapaneseLyrics == nil && ret.RomajiLyrics == nil {
		scan(nil)
	}

	if lyrics := ret.Lyrics(); lyrics != "" {
		ret.DetectedLanguage = whatlanggo.DetectLang(lyrics).Iso6391()
	}
	return ret
}

var entityRegexp = regexp.MustCompile(`&[a-zA-Z]+;`)

// CleanText removes leftover entities and collapses whitespace.
func CleanText(text string) string {
	text = entityRegexp.ReplaceAllString(text, " ")
	return strings.Join(strings.Fields(text), " ")
}

func isJapaneseRune(r rune) bool {
	return (r >= 0x3040 && r <= 0x309f) || // hiragana
		(r >= 0x30a0 && r <= 0x30ff) || // katakana
		(r >= 0x4e00 && r <= 0x9fff) // CJK unified ideographs
}

func isLatinLetter(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}

func ratio(text string, match func(rune) bool) (int, float64) {
	text = strings.TrimSpace(text)
	total := utf8.RuneCountInString(text)
	if total == 0 {
		return 0, 0
	}
	n := 0
	for _, r := range text {
		if match(r) {
			n++
		}
	}
	return n, float64(n) / float64(total)
}

// IsPrimarilyJapanese reports whether more than 30% of the characters are kana or kanji.
func IsPrimarilyJapanese(text string) bool {
	n, r := ratio(text, isJapaneseRune)
	return n > 0 && r > 0.3
}

// IsPrimarilyRomaji reports whether more than 30% of the characters are latin letters.
func IsPrimarilyRomaji(text string) bool {
	n, r := ratio(text, isLatinLetter)
	return n > 0 && r > 0.3
}
