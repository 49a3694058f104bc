// Command haojiu runs the 好揪 API server and its maintenance tasks.
//
//	haojiu serve              start the HTTP and live API
//	haojiu seed [--file f]    load demo data into the store
package main

import (
	"log"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("Error executing command: %v", err)
	}
}
