package main

import (
	"flag"
	"fmt"
	"log"
	"os"
)

func main() {
	var (
		spaceURL     = flag.String("space", "", "Confluence space URL (required)")
		outputDir    = flag.String("o", "confluence_output", "Output directory")
		cookiesFile  = flag.String("cookies-file", "", "Path to a JSON file with exported browser cookies")
		cookieString = flag.String("cookies", "", `Inline cookie string ("name1=value1; name2=value2")`)
		workers      = flag.Int("workers", defaultWorkers, "Number of concurrent page workers")
		skipExisting = flag.Bool("skip-existing", false, "Skip pages whose output file already exists")
		maxRetries   = flag.Int("retries", 0, "Maximum retries per page listing batch (0 = retry forever)")
		verbose      = flag.Bool("v", false, "Verbose logging")
	)
	flag.Parse()

	if *spaceURL == "" {
		fmt.Println("Usage: confdump -space=<URL> (-cookies-file=<path> | -cookies=<string>) [-o=<dir>] [-workers=<n>] [-skip-existing] [-retries=<n>] [-v]")
		fmt.Println("Example: confdump -space=https://your-site.atlassian.net/wiki/spaces/DOCS -cookies-file=cookies.json")
		os.Exit(1)
	}
	if (*cookiesFile == "") == (*cookieString == "") {
		fmt.Println("Error: exactly one of -cookies-file or -cookies is required")
		os.Exit(1)
	}

	scraper, err := NewScraper(Config{
		SpaceURL:     *spaceURL,
		OutputDir:    *outputDir,
		CookiesFile:  *cookiesFile,
		CookieString: *cookieString,
		Workers:      *workers,
		SkipExisting: *skipExisting,
		MaxRetries:   *maxRetries,
		Verbose:      *verbose,
	})
	if err != nil {
		log.Fatal(err)
	}

	counters, err := scraper.ScrapeSpace()
	if err != nil {
		log.Fatal("Export failed: ", err)
	}

	fmt.Printf("%s %d pages exported to %s/ (%d skipped, %d failed)\n",
		colorBold("Export complete!"), counters.Scraped, *outputDir, counters.Skipped, counters.Failed)
}
