package scraper

import (
	"context"
	"log/slog"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/petrijr/scrapeflow"
)

// GoogleNewsWorkflow is the name of the Google News scraping workflow.
const GoogleNewsWorkflow = "GoogleNewsScraperWorkflow"

// GoogleNewsTrigger starts GoogleNewsWorkflow on Emit.
const GoogleNewsTrigger = "scraper:google_news_homepage"

const googleNewsBase = "https://news.google.com"

type googleNews struct {
	cfg Config
}

// fetchHomepage collects every article that links somewhere, filling in
// placeholders for missing fields.
func (gn googleNews) fetchHomepage(ctx context.Context, in scrapeflow.StepInput) (any, error) {
	log := gn.cfg.Logger.With(slog.String("run_id", in.RunID), slog.String("source", "google_news"))
	log.Info("fetching homepage", slog.String("url", gn.cfg.GoogleNewsURL))

	doc, err := fetchDocument(ctx, gn.cfg.Client, gn.cfg.GoogleNewsURL)
	if err != nil {
		log.Warn("fetch homepage failed", slog.Any("error", err))
		return softError(err), nil
	}

	articles := make([]Article, 0)
	doc.Find("article").Each(func(_ int, card *goquery.Selection) {
		link := attr(card.Find("a[href]"), "href")
		if link == "" || link == "#" {
			return
		}

		articles = append(articles, Article{
			Title:         orDefault(text(card.Find("a.gPFEn")), "No Title"),
			Author:        orDefault(text(card.Find("div.vr1PYe")), "Unknown Source"),
			Link:          link,
			PublishedTime: orDefault(text(card.Find("time")), "Unknown Time"),
			ImageURL:      attr(card.Find("img.Quavad[src]"), "src"),
		})
	})

	log.Info("fetched homepage", slog.Int("articles", len(articles)))
	return FetchResult{ArticlesData: articles}, nil
}

func (gn googleNews) parseArticles(ctx context.Context, in scrapeflow.StepInput) (any, error) {
	fetched, err := scrapeflow.ParentAs[FetchResult](in, "fetch_homepage")
	if err != nil {
		return nil, err
	}
	return parseArticles(fetched.ArticlesData, func(a Article) Article {
		a.Link = absoluteGoogleLink(a.Link)
		return a
	}), nil
}

// absoluteGoogleLink turns the page-relative links Google News uses
// ("./read/abc") into absolute ones. Absolute links are kept.
func absoluteGoogleLink(link string) string {
	if u, err := url.Parse(link); err == nil && u.IsAbs() {
		return link
	}
	link = strings.TrimPrefix(link, ".")
	if !strings.HasPrefix(link, "/") {
		link = "/" + link
	}
	return googleNewsBase + link
}
