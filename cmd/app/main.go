// Command app crawls websites for SEO metadata. It runs one crawl from the
// command line and exports the results, or serves crawl runs over HTTP.
//
// Usage:
//
//	app crawl https://example.com -o results.xlsx
//	app serve
package main

func main() {
	Execute()
}
