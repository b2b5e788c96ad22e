// Command analyze runs the extraction and summarization pipeline once for a
// URL and prints the result. Handy for checking a page without the server.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"openlens/internal/analysis"
	"openlens/internal/config"
	"openlens/internal/extractor"
	"openlens/internal/llm"
)

func main() {
	question := flag.String("q", "", "optional question about the article")
	policy := flag.String("policy", "", "extraction policy: paragraphs, paragraphs_headings or readability")
	extractOnly := flag.Bool("extract-only", false, "print the extracted text and stop")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: analyze [flags] <url>\n")
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}
	url := flag.Arg(0)

	cfg := config.FromEnv()
	if *policy != "" {
		cfg.Extractor.Policy = *policy
	}
	ex := extractor.NewFromConfig(cfg.Extractor)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	if *extractOnly {
		fmt.Println(ex.Text(ctx, url))
		return
	}

	a := analysis.NewAnalyzer(ex, llm.NewClientFromConfig(cfg.LLM))
	res, err := a.Analyze(ctx, nil, analysis.NewRequest(url, *question))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	fmt.Println("=== Article Preview ===")
	fmt.Println(res.Preview)
	fmt.Println("\n=== Summary ===")
	fmt.Println(res.Summary)
	if res.HasAnswer {
		fmt.Println("\n=== Answer ===")
		fmt.Println(res.Answer)
	}
	if res.Error != "" {
		fmt.Fprintf(os.Stderr, "\nwarning: %s\n", res.Error)
	}
}
