/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	_ "embed"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/julienschmidt/httprouter"
)

//go:embed assets/buzzer.html
var buzzerHTML []byte

//go:embed assets/timeline.html
var timelineHTML []byte

//go:embed assets/classic.html
var classicHTML []byte

func serveHomePage(cfg *Config) httprouter.Handle {
	var home strings.Builder

	home.WriteString(`<!DOCTYPE html><html lang="en"><head>`)
	home.WriteString(getFavicon())
	home.WriteString(`<meta name="viewport" content="width=device-width, initial-scale=1">`)
	home.WriteString(`<style>body{font-family:sans-serif;max-width:32rem;margin:4rem auto;}a{display:block;padding:1rem;margin:1rem 0;border:1px solid #ccc;border-radius:8px;text-decoration:none;color:inherit;}</style>`)
	home.WriteString(`<title>beatguessr</title></head><body><h1>beatguessr</h1>`)
	home.WriteString(`<a href="` + cfg.prefix + `/timeline">Timeline &mdash; place songs in chronological order</a>`)
	home.WriteString(`<a href="` + cfg.prefix + `/classic">Classic &mdash; guess title and artist, score yourselves</a>`)
	home.WriteString(`<a href="` + cfg.prefix + `/buzzer">Buzzer &mdash; realtime multiplayer quiz with a host</a>`)
	home.WriteString(`</body></html>`)

	page := []byte(home.String())

	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		securityHeaders(cfg, w)

		_, _ = w.Write(page)
	}
}

func servePage(cfg *Config, page []byte) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Cache-Control", "public, max-age=3600")
		w.Header().Set("Expires", time.Now().Add(time.Hour).UTC().Format(http.TimeFormat))
		securityHeaders(cfg, w)

		_, _ = w.Write(page)
	}
}

func serveHealthCheck(cfg *Config, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		securityHeaders(cfg, w)

		_, err := w.Write([]byte("Ok\n"))
		if err != nil {
			errs <- err

			return
		}
	}
}

func serveRobots(cfg *Config, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		data := `User-agent: Amazonbot
Disallow: /

User-agent: Applebot-Extended
Disallow: /

User-agent: Bytespider
Disallow: /

User-agent: CCBot
Disallow: /

User-agent: ClaudeBot
Disallow: /

User-agent: Google-Extended
Disallow: /

User-agent: GPTBot
Disallow: /

User-agent: meta-externalagent
Disallow: /`

		w.Header().Set("Cache-Control", "public, max-age=3600")
		w.Header().Set("Expires", time.Now().Add(time.Hour).UTC().Format(http.TimeFormat))
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Header().Set("Content-Length", strconv.Itoa(len(data)))
		securityHeaders(cfg, w)

		_, err := w.Write([]byte(data))
		if err != nil {
			errs <- err

			return
		}
	}
}
