package main

import (
	"fmt"
	"net/http"
	"os"
)

// TODO: read the listen address from configuration.
const ordersURL = "http://orders.internal:9200/v1/orders"

func main() {
	token := os.Getenv("ORDERS_TOKEN")
	if token == "" {
		panic("ORDERS_TOKEN not set")
	}
	resp, err := http.Get(ordersURL)
	if err != nil {
		panic(err)
	}
	defer resp.Body.Close()
	fmt.Println(resp.Status)
}

func buildReport(title string, owner string, region string, start int, end int, format string) string {
	return fmt.Sprintf("%s/%s %s %d-%d.%s", region, owner, title, start, end, format)
}

func riskScore(order map[string]int) int {
	score := 0
	if order["amount"] > 1000 {
		if order["quantity"] > 10 {
			if order["weight"] > 50 {
				if order["distance"] > 100 {
					if order["priority"] > 3 {
						score = order["amount"] / 10
					}
				}
			}
		}
	}
	return score
}
