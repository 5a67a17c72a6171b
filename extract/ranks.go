package extract

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/aluiziolira/go-scrape-gamewiki/config"
	"github.com/aluiziolira/go-scrape-gamewiki/models"
	"github.com/aluiziolira/go-scrape-gamewiki/parser"
)

// PlaceholderRankCount is the size of the generic rank set returned when a
// ranks page yields nothing.
const PlaceholderRankCount = 12

// RankInfo is the static metadata known for a named rank.
type RankInfo struct {
	ExpRequired int64
	Bonus       string
}

// RankTable maps rank display names to their metadata.
type RankTable map[string]RankInfo

// RankTableFromConfig converts configured rank entries into a RankTable.
func RankTableFromConfig(entries map[string]config.RankEntry) RankTable {
	table := make(RankTable, len(entries))
	for name, e := range entries {
		table[name] = RankInfo{ExpRequired: e.ExpRequired, Bonus: e.Bonus}
	}
	return table
}

// Lookup finds name in the table, ignoring case, accents and punctuation.
func (t RankTable) Lookup(name string) (RankInfo, bool) {
	if info, ok := t[name]; ok {
		return info, true
	}
	slug := parser.Slugify(name)
	if slug == "" {
		return RankInfo{}, false
	}
	for key, info := range t {
		if parser.Slugify(key) == slug {
			return info, true
		}
	}
	return RankInfo{}, false
}

// ExtractRanks runs the list extractor with rank enrichment: the EXP
// requirement is read from the item text and the bonus from table. A page
// with no extractable ranks yields PlaceholderRanks.
func ExtractRanks(doc *goquery.Document, cfg ListConfig, table RankTable, assetPrefix string) ListResult {
	cfg.Kind = config.KindRank
	inner := cfg.Extra
	cfg.Extra = func(sel *goquery.Selection, item *models.ScrapedItem) {
		enrichRank(sel, item, table)
		if inner != nil {
			inner(sel, item)
		}
	}

	result := ExtractList(doc, cfg)
	if len(result.Items) == 0 {
		result.Items = PlaceholderRanks(assetPrefix)
		result.Placeholder = true
	}
	return result
}

func enrichRank(sel *goquery.Selection, item *models.ScrapedItem, table RankTable) {
	info, known := table.Lookup(item.DisplayName)

	exp, ok := parser.ParseExpRequired(sel.Text())
	if !ok && known && info.ExpRequired > 0 {
		exp, ok = info.ExpRequired, true
	}

	if item.ExtraFields == nil {
		item.ExtraFields = make(map[string]string)
	}

	var requirements []string
	if ok {
		item.ExtraFields["expRequired"] = strconv.FormatInt(exp, 10)
		requirements = append(requirements, fmt.Sprintf("%d EXP", exp))
	}
	if known && info.Bonus != "" {
		item.ExtraFields["bonus"] = info.Bonus
		requirements = append(requirements, "Bonus: "+info.Bonus)
	}
	if len(requirements) > 0 {
		item.ExtraFields["requirements"] = strings.Join(requirements, " | ")
	}
	if len(item.ExtraFields) == 0 {
		item.ExtraFields = nil
	}
}

// PlaceholderRanks returns the generic "Rank 1".."Rank 12" set, with image
// paths under assetPrefix.
func PlaceholderRanks(assetPrefix string) []models.ScrapedItem {
	if assetPrefix == "" {
		assetPrefix = "/assets/"
	}
	if !strings.HasSuffix(assetPrefix, "/") {
		assetPrefix += "/"
	}

	items := make([]models.ScrapedItem, 0, PlaceholderRankCount)
	for n := 1; n <= PlaceholderRankCount; n++ {
		name := fmt.Sprintf("Rank %d", n)
		items = append(items, models.ScrapedItem{
			Identifier:  Identifier(config.KindRank, name, n-1),
			Kind:        config.KindRank,
			DisplayName: name,
			ImageURL:    fmt.Sprintf("%srank-%d.png", assetPrefix, n),
			ExtraFields: map[string]string{"placeholder": "true"},
		})
	}
	return items
}
