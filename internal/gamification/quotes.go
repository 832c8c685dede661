package gamification

import "math/rand/v2"

var Quotes = []string{
	"The greatest threat to our planet is the belief that someone else will save it.",
	"There is no such thing as 'away'. When we throw anything away it must go somewhere.",
	"Refuse what you do not need; reduce what you do need; reuse what you consume; recycle what you cannot refuse.",
	"You are making a difference, one project at a time.",
	"Waste isn't waste until we waste it.",
	"Small acts, when multiplied by millions of people, can transform the world.",
	"Do something drastic, cut the plastic!",
	"Creativity is making marvelous out of the discarded.",
}

// RandomQuote picks a quote; r may be nil to use the global source.
func RandomQuote(r *rand.Rand) string {
	if r == nil {
		return Quotes[rand.IntN(len(Quotes))]
	}
	return Quotes[r.IntN(len(Quotes))]
}
