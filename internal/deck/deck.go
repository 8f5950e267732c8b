// internal/deck/deck.go
package deck

import (
	"errors"
	"math/rand"
	"strings"
	"time"
)

// WhiteCard is a single response card played into a blank.
type WhiteCard struct {
	Text string `json:"text"`
}

// BlackCard is a prompt card. Fields is the number of blanks, i.e. how many
// white cards a submission for this card must contain.
type BlackCard struct {
	Text   string `json:"text"`
	Fields int    `json:"fields"`
}

// Info is the deck metadata carried inside lobby settings. Enabled marks the
// deck for inclusion in random sampling.
type Info struct {
	Name     string `json:"name"`
	Deckcode string `json:"deckcode"`
	Enabled  bool   `json:"enabled"`
}

// Deck is a full cached deck: metadata plus its black and white card pools.
type Deck struct {
	Name     string      `json:"name"`
	Deckcode string      `json:"deckcode"`
	Blacks   []BlackCard `json:"blacks"`
	Whites   []WhiteCard `json:"whites"`
}

// Info returns the metadata view of the deck with Enabled unset.
func (d *Deck) Info() Info {
	return Info{Name: d.Name, Deckcode: d.Deckcode}
}

// Sampling errors. The game layer maps these to its Deck error kind.
var (
	ErrNoBlackCards = errors.New("no black cards available")
	ErrNoWhiteCards = errors.New("no white cards available")
)

// RandomBlack draws one black card uniformly across the union of the given
// decks' black pools.
func RandomBlack(decks []*Deck) (BlackCard, error) {
	var pool []BlackCard
	for _, d := range decks {
		pool = append(pool, d.Blacks...)
	}
	if len(pool) == 0 {
		return BlackCard{}, ErrNoBlackCards
	}
	r := rand.New(rand.NewSource(time.Now().UnixNano()))
	return pool[r.Intn(len(pool))], nil
}

// RandomWhites draws up to count white cards uniformly, without replacement,
// across the union of the given decks' white pools. Fewer than count cards
// are returned when the union is smaller; an empty union is an error.
func RandomWhites(decks []*Deck, count int) ([]WhiteCard, error) {
	var pool []WhiteCard
	for _, d := range decks {
		pool = append(pool, d.Whites...)
	}
	if len(pool) == 0 {
		return nil, ErrNoWhiteCards
	}
	if count > len(pool) {
		count = len(pool)
	}
	r := rand.New(rand.NewSource(time.Now().UnixNano()))
	picked := make([]WhiteCard, 0, count)
	for _, i := range r.Perm(len(pool))[:count] {
		picked = append(picked, pool[i])
	}
	return picked, nil
}

// crCastResponse matches the crcast deck API JSON exactly.
type crCastResponse struct {
	Name      string       `json:"name"`
	Watermark string       `json:"watermark"`
	Calls     []crCastCard `json:"calls"`
	Responses []crCastCard `json:"responses"`
}

type crCastCard struct {
	Text []string `json:"text"`
}

// toDeck converts the crcast representation: a call's text segments are the
// fragments around its blanks, so the prompt text joins them with " _ " and
// the blank count is len(segments)-1. Responses keep only their first text
// segment.
func (resp *crCastResponse) toDeck() *Deck {
	blacks := make([]BlackCard, 0, len(resp.Calls))
	for _, c := range resp.Calls {
		fields := len(c.Text) - 1
		if fields < 0 {
			fields = 0
		}
		blacks = append(blacks, BlackCard{
			Text:   strings.Join(c.Text, " _ "),
			Fields: fields,
		})
	}

	whites := make([]WhiteCard, 0, len(resp.Responses))
	for _, r := range resp.Responses {
		if len(r.Text) == 0 {
			continue
		}
		whites = append(whites, WhiteCard{Text: r.Text[0]})
	}

	return &Deck{
		Name:     resp.Name,
		Deckcode: resp.Watermark,
		Blacks:   blacks,
		Whites:   whites,
	}
}
