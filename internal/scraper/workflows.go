package scraper

import (
	"github.com/petrijr/scrapeflow"
)

// ScraperWorkflow is the name of the parent workflow started by POST /scrape.
const ScraperWorkflow = "ScraperWorkflow"

// StartTrigger starts ScraperWorkflow on Emit.
const StartTrigger = "scraper:start"

// Flows returns the builders for all scraping workflows.
func Flows(cfg Config) []*scrapeflow.FlowBuilder {
	cfg = cfg.withDefaults()
	tc := techCrunch{cfg: cfg}
	gn := googleNews{cfg: cfg}

	return []*scrapeflow.FlowBuilder{
		scrapeflow.New(ScraperWorkflow).
			On(StartTrigger).
			Step("start", scrapeflow.ChildrenStep(
				scrapeflow.Child{Key: "techCrunchArticles", Workflow: TechCrunchWorkflow, Payload: map[string]any{}},
				scrapeflow.Child{Key: "googleNewsArticles", Workflow: GoogleNewsWorkflow, Payload: map[string]any{}},
			)),

		scrapeflow.New(TechCrunchWorkflow).
			On(TechCrunchTrigger).
			Step("fetch_homepage", tc.fetchHomepage).
			Step("parse_articles", tc.parseArticles, "fetch_homepage"),

		scrapeflow.New(GoogleNewsWorkflow).
			On(GoogleNewsTrigger).
			Step("fetch_homepage", gn.fetchHomepage).
			Step("parse_articles", gn.parseArticles, "fetch_homepage"),
	}
}

// Register registers every scraping workflow with eng.
func Register(eng scrapeflow.Registrar, cfg Config) error {
	for _, flow := range Flows(cfg) {
		if err := flow.Register(eng); err != nil {
			return err
		}
	}
	return nil
}
