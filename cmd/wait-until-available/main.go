package main

import (
	"fmt"
	"net/http"
	"os"
	"time"
)

// Polls the identity service's health endpoint until it answers, so that
// compose setups and CI scripts can block on readiness.
//
// Usage example on the command line:
// > PORT=8080 go run main.go
func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	url := fmt.Sprintf("http://localhost:%s/health", port)
	totalWaitTime := 0
	for {
		res, err := http.Get(url)
		if err == nil && res.StatusCode == http.StatusOK {
			fmt.Println(res)
			break
		}
		if err != nil {
			fmt.Println(err)
		} else {
			fmt.Println(res)
		}
		totalWaitTime += 5
		fmt.Printf("Waiting %d seconds\n", totalWaitTime)
		time.Sleep(5 * time.Second)
	}
}
