package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"
)

const serverPort = 8080

// ConsolidatedContact mirrors the service's response projection.
type ConsolidatedContact struct {
	PrimaryContactId    int64    `json:"primaryContactId"`
	Emails              []string `json:"emails"`
	PhoneNumbers        []string `json:"phoneNumbers"`
	SecondaryContactIds []int64  `json:"secondaryContactIds"`
}

type identifyResponse struct {
	Contact ConsolidatedContact `json:"contact"`
}

// scenario is one identify call together with a description of what it
// exercises against a fresh database.
type scenario struct {
	description string
	body        string
}

// The scripted run walks through the interesting reconciliation cases in
// order: a new identity, a pure re-read, a gap insert, a second identity,
// and finally a bridging pair that merges the two groups.
var scenarios = []scenario{
	{"new identity", `{"email": "alice@example.com", "phoneNumber": "111111"}`},
	{"exact re-read", `{"email": "alice@example.com", "phoneNumber": "111111"}`},
	{"gap insert (new phone)", `{"email": "alice@example.com", "phoneNumber": "222222"}`},
	{"second identity", `{"email": "bob@example.com", "phoneNumber": "333333"}`},
	{"bridge merge", `{"email": "alice@example.com", "phoneNumber": "333333"}`},
}

// Usage example on the command line:
// > go run main.go -burst=16
func main() {
	burst := flag.Int("burst", 0, "number of parallel identify calls with one shared novel pair")
	flag.Parse()

	fmt.Println()
	fmt.Printf("  %-28s %10s   %s\n", "Scenario", "micros", "Result")
	fmt.Println("--------------------------------------------------------------------")
	for _, s := range scenarios {
		contact, duration := sendIdentifyRequest(s.body)
		fmt.Printf("  %-28s %10d   primary=%d secondaries=%v emails=%v phones=%v\n",
			s.description, duration/1000, contact.PrimaryContactId,
			contact.SecondaryContactIds, contact.Emails, contact.PhoneNumbers)
	}

	if *burst > 0 {
		runBurst(*burst)
	}
}

// runBurst fires count concurrent identify calls that all carry the same
// brand-new pair. Every response must name the same primary: the store's
// atomicity guarantees that exactly one of the racing calls creates it.
func runBurst(count int) {
	pair := fmt.Sprintf(`{"email": "burst-%d@example.com", "phoneNumber": "999999"}`, time.Now().UnixNano())
	primaries := make([]int64, count)
	var group errgroup.Group
	for i := 0; i < count; i++ {
		i := i
		group.Go(func() error {
			contact, _ := sendIdentifyRequest(pair)
			primaries[i] = contact.PrimaryContactId
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		panic(err)
	}
	distinct := make(map[int64]bool)
	for _, id := range primaries {
		distinct[id] = true
	}
	fmt.Println()
	fmt.Printf("  burst of %d identical novel pairs resolved to %d primary contact(s): %v\n",
		count, len(distinct), primaries)
}

func sendIdentifyRequest(body string) (ConsolidatedContact, int64) {
	requestURL := fmt.Sprintf("http://localhost:%d/identify", serverPort)
	req, err := http.NewRequest(http.MethodPost, requestURL, bytes.NewReader([]byte(body)))
	if err != nil {
		fmt.Println("could not create request", err)
		panic(err)
	}
	req.Header.Set("Content-Type", "application/json")
	before := time.Now().UnixNano()
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		fmt.Println("error making http request", err)
		panic(err)
	}
	resBody, err := io.ReadAll(res.Body)
	res.Body.Close()
	if err != nil {
		fmt.Println("could not read response body", err)
		panic(err)
	}
	after := time.Now().UnixNano()
	if res.StatusCode != http.StatusOK {
		fmt.Printf("unexpected status %d: %s\n", res.StatusCode, resBody)
		panic("identify call failed")
	}
	var response identifyResponse
	if err := json.Unmarshal(resBody, &response); err != nil {
		fmt.Println("could not unmarshal JSON", err)
		panic(err)
	}
	return response.Contact, after - before
}
