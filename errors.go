/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"
)

// Buzzer-mode failures surfaced to the originating client as an
// error{message} event. None of these are fatal to a room.
var (
	ErrCapacityExceeded   = errors.New("room limit reached, try again later")
	ErrHostConnected      = errors.New("the host is already connected")
	ErrNameRequired       = errors.New("a player name is required")
	ErrNameTaken          = errors.New("that name is already taken in this room")
	ErrNoPlayers          = errors.New("at least one player is required")
	ErrNoActiveBuzzer     = errors.New("nobody is buzzed in")
	ErrNotHost            = errors.New("only the host can do that")
	ErrRoomAlreadyEnded   = errors.New("this game has already ended")
	ErrRoomFull           = errors.New("this room is full")
	ErrRoomNotFound       = errors.New("room not found")
	ErrRoundAlreadyActive = errors.New("a round is already in progress")
)

func logf(cfg *Config, format string, args ...any) {
	if !cfg.verbose {
		return
	}

	log.Printf("%s | "+format, append([]any{time.Now().Format(logDate)}, args...)...)
}

func newPage(title, body string) string {
	var htmlBody strings.Builder

	htmlBody.WriteString(`<!DOCTYPE html><html lang="en"><head>`)
	htmlBody.WriteString(getFavicon())
	htmlBody.WriteString(`<style>`)
	htmlBody.WriteString(`html,body,a{display:block;height:100%;width:100%;text-decoration:none;color:inherit;cursor:auto;}</style>`)
	htmlBody.WriteString(fmt.Sprintf("<title>%s</title></head>", title))
	htmlBody.WriteString(fmt.Sprintf("<body><a href=\"/\">%s</a></body></html>", body))

	return htmlBody.String()
}
