package letterboxd

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// FilmData is one diary entry as served to the site.
type FilmData struct {
	Name      string `json:"name"`
	PosterURL string `json:"poster_url"`
	Rating    uint32 `json:"rating"`
	WatchedAt string `json:"watched_at"`
}

// ParseFilms extracts diary entries from a films page. Entries missing any field are skipped.
func ParseFilms(body []byte) ([]FilmData, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse films page: %w", err)
	}
	films := []FilmData{}
	doc.Find("div.poster-grid li").Each(func(_ int, item *goquery.Selection) {
		if film, ok := parseFilm(item); ok {
			films = append(films, film)
		}
	})
	return films, nil
}

func parseFilm(item *goquery.Selection) (FilmData, bool) {
	name, ok := item.Find("img").First().Attr("alt")
	if !ok {
		return FilmData{}, false
	}
	class, ok := item.Find("span.rating").First().Attr("class")
	if !ok {
		return FilmData{}, false
	}
	rating, ok := parseRating(class)
	if !ok {
		return FilmData{}, false
	}
	watchedAt, ok := item.Find("time").First().Attr("datetime")
	if !ok {
		return FilmData{}, false
	}
	link, ok := item.Find(`[data-component-class="LazyPoster"]`).First().Attr("data-item-link")
	if !ok {
		return FilmData{}, false
	}
	return FilmData{
		Name:      name,
		PosterURL: link,
		Rating:    rating,
		WatchedAt: watchedAt,
	}, true
}

// parseRating reads the star count from a class list such as "rating rated-8".
func parseRating(class string) (uint32, bool) {
	idx := strings.LastIndex(class, "-")
	n, err := strconv.ParseUint(class[idx+1:], 10, 32)
	if err != nil {
		return 0, false
	}
	return uint32(n), true
}
