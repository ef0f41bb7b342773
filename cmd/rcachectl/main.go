// Command rcachectl drives IOVA range caches and reports their statistics.
package main

func main() {
	execute()
}
