package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"
)

const baseURL = "http://localhost:8080"

func main() {
	// Wait for server to start
	time.Sleep(2 * time.Second)

	userID := fmt.Sprintf("e2e-user-%d", time.Now().UnixNano())
	base := "/users/" + userID

	// 1. Health Check
	checkEndpoint("GET", "/health", nil, 200)

	// 2. Fresh user gets the default portfolio
	checkEndpoint("GET", base+"/portfolios", nil, 200)

	// 3. Fill the active portfolio
	checkEndpoint("PATCH", base+"/portfolio", map[string]string{"field": "current_value", "value": "100000"}, 200)
	checkEndpoint("PATCH", base+"/portfolio/risk-profile", map[string]string{"bucket": "stocks", "value": "100"}, 200)
	asset := decode(checkEndpoint("POST", base+"/portfolio/assets", map[string]string{"category": "domestic_equities"}, 201))
	assetPath := fmt.Sprintf("%s/portfolio/assets/%v", base, asset["id"])
	for field, value := range map[string]string{"ticker": "SBER", "price": "1000", "lot_size": "10", "target_share": "20", "quantity": "15"} {
		checkEndpoint("PATCH", assetPath, map[string]string{"field": field, "value": value}, 200)
	}

	// 4. Report and price refresh
	checkEndpoint("GET", base+"/portfolio/report", nil, 200)
	checkEndpoint("POST", base+"/portfolio/refresh-prices", nil, 200)

	// 5. Soft delete a second portfolio and undo it
	created := decode(checkEndpoint("POST", base+"/portfolios", nil, 201))
	id := fmt.Sprintf("%v", created["id"])
	checkEndpoint("DELETE", base+"/portfolios/"+id, nil, 202)
	checkEndpoint("GET", base+"/pending-delete", nil, 200)
	checkEndpoint("POST", base+"/undo", nil, 200)
	checkEndpoint("POST", base+"/undo", nil, 409)

	// 6. The last portfolio cannot go
	checkEndpoint("DELETE", base+"/portfolios/"+id, nil, 202)
	checkEndpoint("DELETE", base+"/portfolios/1", nil, 409)

	fmt.Println("ALL TESTS PASSED")
}

func checkEndpoint(method, path string, body interface{}, expectedStatus int) []byte {
	fmt.Printf("Testing %s %s...\n", method, path)
	var bodyReader io.Reader
	if body != nil {
		jsonBody, _ := json.Marshal(body)
		bodyReader = bytes.NewBuffer(jsonBody)
	}

	req, _ := http.NewRequest(method, baseURL+path, bodyReader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		log.Fatalf("Request failed: %v", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != expectedStatus {
		log.Fatalf("Expected status %d, got %d. Body: %s", expectedStatus, resp.StatusCode, string(respBody))
	}
	fmt.Printf("Response: %s\n", string(respBody))
	return respBody
}

func decode(b []byte) map[string]interface{} {
	var res map[string]interface{}
	if err := json.Unmarshal(b, &res); err != nil {
		log.Fatalf("decode response: %v", err)
	}
	return res
}
