// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package sdg tags text with UN Sustainable Development Goals using keyword
// lists. Publications imported without SDG tags are classified from their
// title and abstract.
package sdg

import (
	"regexp"
	"slices"
	"strings"
)

const (
	// DefaultThreshold is the minimum share of a goal's keywords that must
	// match for the goal to be assigned.
	DefaultThreshold = 0.3

	// TitleThresholdBoost raises the threshold for titles, which are short
	// and match by chance more easily.
	TitleThresholdBoost = 0.1
)

// Goal is one Sustainable Development Goal with its indicator keywords.
type Goal struct {
	Tag      string
	Label    string
	Keywords []string
}

// Goals lists SDG 1 to 17 in order.
var Goals = []Goal{
	{"SDG_1", "No Poverty", []string{
		"poverty", "poor", "low-income", "vulnerable", "disadvantaged",
		"economic inequality", "welfare", "subsistence", "destitution",
		"extreme poverty", "absolute poverty", "poverty alleviation",
		"impoverished", "impoverishment", "deprivation", "inequitable",
		"income inequality", "wealth gap", "economic disparity",
	}},
	{"SDG_2", "Zero Hunger", []string{
		"hunger", "food security", "malnutrition", "famine", "starvation",
		"agriculture", "crop", "farming", "livestock", "nutrition",
		"food production", "agricultural productivity", "food supply",
		"subsistence farming", "food insecurity", "dietary", "nutritional",
	}},
	{"SDG_3", "Good Health and Well-being", []string{
		"health", "disease", "medical", "healthcare", "illness", "wellness",
		"hospital", "clinic", "physician", "medicine", "treatment", "vaccine",
		"mortality", "morbidity", "epidemiology", "pandemic", "epidemic",
		"mental health", "well-being", "healthy", "sanitation", "hygiene",
	}},
	{"SDG_4", "Quality Education", []string{
		"education", "learning", "school", "university", "student",
		"teacher", "curriculum", "academic", "literacy", "training",
		"skill development", "educational", "pedagogical", "didactic",
		"higher education", "primary education", "secondary education",
		"quality education", "equal education",
	}},
	{"SDG_5", "Gender Equality", []string{
		"gender equality", "gender", "women", "female", "woman",
		"feminism", "feminist", "discrimination", "bias", "equity",
		"women's rights", "gender-based violence", "sexual harassment",
		"empowerment", "gender parity", "male-female", "gender gap",
	}},
	{"SDG_6", "Clean Water and Sanitation", []string{
		"water", "sanitation", "hygiene", "clean water", "drinking water",
		"water supply", "water treatment", "wastewater", "sewage",
		"water quality", "water scarcity", "water pollution", "aquatic",
		"hydration", "water security", "water resources",
	}},
	{"SDG_7", "Affordable and Clean Energy", []string{
		"energy", "renewable", "solar", "wind", "hydroelectric", "geothermal",
		"fossil fuel", "electricity", "power", "clean energy", "sustainable energy",
		"energy efficiency", "energy access", "energy security", "biofuel",
		"nuclear energy", "energy transition",
	}},
	{"SDG_8", "Decent Work and Economic Growth", []string{
		"employment", "jobs", "work", "labor", "labour", "wage", "workplace",
		"economic growth", "economic development", "productivity", "entrepreneurship",
		"business", "decent work", "working conditions", "unemployment",
		"formal employment", "informal economy",
	}},
	{"SDG_9", "Industry, Innovation and Infrastructure", []string{
		"infrastructure", "industry", "innovation", "technology", "industrial",
		"manufacturing", "construct", "bridge", "road", "transport",
		"innovation", "research", "development", "industrial development",
		"resilient infrastructure", "sustainable industry", "ict",
	}},
	{"SDG_10", "Reduced Inequalities", []string{
		"inequality", "inequitable", "inequity", "discrimination", "marginalize",
		"disadvantaged", "vulnerable", "disparity", "gap", "unequal",
		"social inclusion", "social cohesion", "redistribution", "equity",
	}},
	{"SDG_11", "Sustainable Cities and Communities", []string{
		"city", "urban", "community", "settlement", "housing", "slum",
		"sustainable city", "sustainable community", "livable", "resilient",
		"disaster reduction", "infrastructure", "pollution", "green space",
		"public transport", "municipal",
	}},
	{"SDG_12", "Responsible Consumption and Production", []string{
		"consumption", "production", "waste", "recycle", "circular economy",
		"sustainable consumption", "responsible consumption", "resource",
		"material", "pollution", "sustainable management", "reduce",
		"reuse", "repurpose", "lifecycle", "footprint",
	}},
	{"SDG_13", "Climate Action", []string{
		"climate", "global warming", "greenhouse gas", "carbon", "emissions",
		"temperature", "weather", "climate change", "mitigation", "adaptation",
		"climate action", "climate variability", "extreme weather", "gdp",
		"carbon dioxide", "methane", "environmental",
	}},
	{"SDG_14", "Life Below Water", []string{
		"ocean", "marine", "sea", "aquatic", "fish", "fishing", "coral",
		"marine ecosystem", "biodiversity", "ocean acidification", "pollution",
		"overfishing", "sustainable fisheries", "coastal", "blue economy",
		"maritime", "water body",
	}},
	{"SDG_15", "Life on Land", []string{
		"forest", "woodland", "terrestrial", "ecosystem", "biodiversity",
		"species", "wildlife", "conservation", "endangered", "habitat",
		"deforestation", "land degradation", "desertification", "wetland",
		"vegetation", "fauna", "flora",
	}},
	{"SDG_16", "Peace, Justice and Strong Institutions", []string{
		"peace", "justice", "institution", "governance", "corruption",
		"violence", "conflict", "law enforcement", "legal", "rule of law",
		"human rights", "discrimination", "accountability", "transparency",
		"democratic", "inclusive",
	}},
	{"SDG_17", "Partnerships for the Goals", []string{
		"partnership", "collaboration", "cooperation", "stakeholder", "multi-stakeholder",
		"network", "alliance", "development", "finance", "investment",
		"technology transfer", "capacity building", "global partnership",
		"sustainable development",
	}},
}

var nonWord = regexp.MustCompile(`[^a-z0-9\s\-]`)

// ClassifyText returns the tags of goals whose keyword match ratio reaches
// threshold, in goal order. A keyword whose words all occur in text counts
// as one match; a keyword with only some of its words present counts as
// half. The match total is truncated to a whole number before the ratio is
// taken.
func ClassifyText(text string, threshold float64) []string {
	tokens := tokenSet(text)
	if len(tokens) == 0 {
		return nil
	}

	var out []string
	for _, g := range Goals {
		matches := countMatches(tokens, g.Keywords)
		if matches == 0 {
			continue
		}
		if float64(matches)/float64(len(g.Keywords)) >= threshold {
			out = append(out, g.Tag)
		}
	}
	return out
}

// ClassifyPublication classifies title and abstract separately, the title
// with a higher threshold, and returns the union in goal order.
func ClassifyPublication(title, abstract string, threshold float64) []string {
	found := map[string]bool{}
	if strings.TrimSpace(title) != "" {
		for _, t := range ClassifyText(title, threshold+TitleThresholdBoost) {
			found[t] = true
		}
	}
	if strings.TrimSpace(abstract) != "" {
		for _, t := range ClassifyText(abstract, threshold) {
			found[t] = true
		}
	}

	var out []string
	for _, g := range Goals {
		if found[g.Tag] {
			out = append(out, g.Tag)
		}
	}
	return out
}

// Label returns the goal name for tag, or tag itself if unknown.
func Label(tag string) string {
	i := slices.IndexFunc(Goals, func(g Goal) bool { return strings.EqualFold(g.Tag, strings.TrimSpace(tag)) })
	if i < 0 {
		return tag
	}
	return Goals[i].Label
}

func countMatches(tokens map[string]bool, keywords []string) int {
	var count float64
	for _, kw := range keywords {
		words := strings.Fields(normalize(kw))
		present := 0
		for _, w := range words {
			if tokens[w] {
				present++
			}
		}
		switch {
		case present == len(words) && present > 0:
			count++
		case present > 0:
			count += 0.5
		}
	}
	return int(count)
}

func normalize(text string) string {
	return nonWord.ReplaceAllString(strings.ToLower(text), " ")
}

func tokenSet(text string) map[string]bool {
	fields := strings.Fields(normalize(text))
	set := make(map[string]bool, len(fields))
	for _, f := range fields {
		set[f] = true
	}
	return set
}
