package scraper

import (
	"context"
	"log/slog"

	"github.com/PuerkitoBio/goquery"

	"github.com/petrijr/scrapeflow"
)

// TechCrunchWorkflow is the name of the TechCrunch AI scraping workflow.
const TechCrunchWorkflow = "TechCrunchAIScraperWorkflow"

// TechCrunchTrigger starts TechCrunchWorkflow on Emit.
const TechCrunchTrigger = "scraper:techcrunch_ai_homepage"

type techCrunch struct {
	cfg Config
}

// fetchHomepage collects every post card that has a title, author and link.
func (tc techCrunch) fetchHomepage(ctx context.Context, in scrapeflow.StepInput) (any, error) {
	log := tc.cfg.Logger.With(slog.String("run_id", in.RunID), slog.String("source", "techcrunch"))
	log.Info("fetching homepage", slog.String("url", tc.cfg.TechCrunchURL))

	doc, err := fetchDocument(ctx, tc.cfg.Client, tc.cfg.TechCrunchURL)
	if err != nil {
		log.Warn("fetch homepage failed", slog.Any("error", err))
		return softError(err), nil
	}

	articles := make([]Article, 0)
	doc.Find("div.wp-block-tc23-post-picker").Each(func(_ int, card *goquery.Selection) {
		title := card.Find("h2.wp-block-post-title").First()
		author := card.Find("div.wp-block-tc23-author-card-name").First()
		link := title.Find("a[href]").First()

		if title.Length() == 0 || author.Length() == 0 || link.Length() == 0 {
			return
		}

		articles = append(articles, Article{
			Title:         text(title),
			Author:        text(author),
			Link:          attr(link, "href"),
			Excerpt:       text(card.Find("div.wp-block-post-excerpt__excerpt")),
			PublishedTime: text(card.Find("time")),
			ImageURL:      attr(card.Find("img[src]"), "src"),
		})
	})

	log.Info("fetched homepage", slog.Int("articles", len(articles)))
	return FetchResult{ArticlesData: articles}, nil
}

func (tc techCrunch) parseArticles(ctx context.Context, in scrapeflow.StepInput) (any, error) {
	fetched, err := scrapeflow.ParentAs[FetchResult](in, "fetch_homepage")
	if err != nil {
		return nil, err
	}
	return parseArticles(fetched.ArticlesData, func(a Article) Article { return a }), nil
}

// parseArticles keeps complete articles, normalising each with fix.
func parseArticles(data []Article, fix func(Article) Article) ParseResult {
	if len(data) == 0 {
		return ParseResult{Status: "error", Message: "No articles data found"}
	}

	articles := make([]Article, 0, len(data))
	for _, a := range data {
		if a.Title == "" || a.Author == "" || a.Link == "" {
			continue
		}
		articles = append(articles, fix(a))
	}
	return ParseResult{Status: "success", Articles: articles}
}
