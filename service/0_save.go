package service

import (
	"os"
	"path"
	"sort"
	"strings"

	"github.com/fulldump/apitest"
	json2 "github.com/go-json-experiment/json"
	"github.com/go-json-experiment/json/jsontext"
	"github.com/rs/zerolog/log"
)

// Save writes a markdown example of the exchange into API_EXAMPLES_PATH, when
// set.
func Save(response *apitest.Response, title, description string) {

	examplesPath := os.Getenv("API_EXAMPLES_PATH")
	if examplesPath == "" {
		return
	}

	request := response.Request
	query := request.URL.RawQuery
	if query != "" {
		query = "?" + query
	}
	requestBody := formatJSON(response.BodyRequestString())

	s := &strings.Builder{}
	s.WriteString("# " + title + "\n")
	s.WriteString(cropTabs(description) + "\n")

	s.WriteString("Curl example:\n\n```sh\ncurl ")
	if request.Method != "GET" {
		s.WriteString("-X " + request.Method + " ")
	}
	s.WriteString(`"https://example.com` + request.URL.Path + query + `"`)
	for k, l := range request.Header {
		for _, v := range l {
			s.WriteString(" \\\n-H \"" + k + ": " + v + "\"")
		}
	}
	if requestBody != "" {
		s.WriteString(" \\\n-d '" + requestBody + "'")
	}
	s.WriteString("\n```\n\n\n")

	s.WriteString("HTTP request/response example:\n\n```http\n")
	s.WriteString(request.Method + " " + request.URL.Path + query + " " + request.Proto + "\n")
	s.WriteString("Host: example.com\n")
	for k, l := range request.Header {
		for _, v := range l {
			s.WriteString(k + ": " + v + "\n")
		}
	}
	s.WriteString("\n" + requestBody + "\n\n")

	s.WriteString(response.Proto + " " + response.Status + "\n")
	headers := []string{}
	for k := range response.Header {
		headers = append(headers, k)
	}
	sort.Strings(headers)
	for _, k := range headers {
		if k == "Date" {
			s.WriteString("Date: Mon, 15 Aug 2022 02:08:13 GMT\n")
			continue
		}
		for _, v := range response.Header[k] {
			s.WriteString(k + ": " + v + "\n")
		}
	}
	s.WriteString("\n" + formatJSON(response.BodyString()) + "\n```\n\n\n")

	filename := strings.ReplaceAll(strings.ToLower(title), " ", "_") + ".md"
	p := path.Join(examplesPath, path.Clean(filename))
	err := os.WriteFile(p, []byte(s.String()), 0666)
	if err != nil {
		log.Error().Err(err).Str("file", p).Msg("save example")
	}
}

// formatJSON indents body when it holds a single JSON value.
func formatJSON(body string) string {
	var v any
	if json2.Unmarshal([]byte(body), &v) != nil {
		return body
	}
	pretty, err := json2.Marshal(v, jsontext.WithIndent("    "), json2.Deterministic(true))
	if err != nil {
		return body
	}
	return string(pretty)
}

// cropTabs removes the indentation shared by the inner lines of a raw
// string literal.
func cropTabs(d string) string {
	lines := strings.Split(d, "\n")

	first, last := 0, len(lines)
	if len(lines) > 2 {
		first++
		last--
	}

	minTabs := -1
	for _, line := range lines[first:last] {
		if strings.TrimSpace(line) == "" {
			continue
		}
		tabs := len(line) - len(strings.TrimLeft(line, "\t"))
		if minTabs < 0 || tabs < minTabs {
			minTabs = tabs
		}
	}
	if minTabs <= 0 {
		return d
	}

	prefix := strings.Repeat("\t", minTabs)
	for i, line := range lines {
		lines[i] = strings.TrimPrefix(line, prefix)
	}
	return strings.Join(lines, "\n")
}
