package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"
)

// Result 记录单次请求的 HTTP 结果，便于聚合统计。
type Result struct {
	Status int
	Body   string
	Err    error
}

func main() {
	baseURL := flag.String("base", "http://localhost:8080", "server base url")
	productID := flag.Int("product", 1, "product id")
	adminToken := flag.String("admin-token", "dev-admin-token", "admin token for the stats endpoint")
	seed := flag.Bool("seed", true, "put the product into every user's cart before the test")

	// 超卖测试参数：200 个用户各自购物车里放 1 件，并发下单
	nUsers := flag.Int("users", 200, "distinct users")
	firstUser := flag.Int("first-user", 1, "first X-User-ID")
	concurrency := flag.Int("c", 50, "max concurrency")
	flag.Parse()

	client := &http.Client{Timeout: 15 * time.Second}

	if *seed {
		// 加购会校验库存，库存小于 1 时这里就会失败
		failed := 0
		for i := 0; i < *nUsers; i++ {
			err := doJSON(client, http.MethodPost, *baseURL+"/api/cart",
				map[string]int{"product_id": *productID, "quantity": 1},
				map[string]string{"X-User-ID": strconv.Itoa(*firstUser + i)})
			if err != nil {
				failed++
			}
		}
		fmt.Printf("seed carts: users=%d failed=%d\n", *nUsers, failed)
	}

	// 1) 不超卖测试：不同 user 并发下单，201 的数量不应超过库存
	fmt.Printf("start oversell test: product=%d users=%d concurrency=%d\n", *productID, *nUsers, *concurrency)
	results := runParallel(*nUsers, *concurrency, func(idx int) Result {
		return createOrder(client, *baseURL, *firstUser+idx)
	})
	printSummary("oversell", results)

	if stats, err := getStats(client, *baseURL, *adminToken); err != nil {
		fmt.Println("stats err:", err)
	} else {
		fmt.Println("orders by status:", stats)
	}

	// 2) 限流测试：同一个 user 连续下单（默认 RATE_LIMIT=20/s，50 个并发必然触发 429）
	fmt.Println("\nstart rate limit test: same user (10001), 50 requests, concurrency 50")
	results2 := runParallel(50, 50, func(int) Result {
		return createOrder(client, *baseURL, 10001)
	})
	printSummary("rate_limit", results2)
}

func runParallel(total, concurrency int, fn func(idx int) Result) []Result {
	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup
	results := make([]Result, total)

	for i := 0; i < total; i++ {
		wg.Add(1)
		sem <- struct{}{}
		go func(idx int) {
			defer wg.Done()
			defer func() { <-sem }()
			results[idx] = fn(idx)
		}(i)
	}

	wg.Wait()
	return results
}

func createOrder(client *http.Client, baseURL string, userID int) Result {
	httpReq, _ := http.NewRequest(http.MethodPost, baseURL+"/api/orders", bytes.NewReader([]byte("{}")))
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-User-ID", strconv.Itoa(userID))

	resp, err := client.Do(httpReq)
	if err != nil {
		return Result{Err: err}
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return Result{Status: resp.StatusCode, Body: string(body)}
}

// printSummary 聚合输出不同状态码分布。
func printSummary(name string, results []Result) {
	count := map[int]int{}
	errCount := 0
	for _, r := range results {
		if r.Err != nil {
			errCount++
			continue
		}
		count[r.Status]++
	}
	fmt.Printf("[%s] http status summary:\n", name)
	for _, code := range []int{201, 400, 401, 404, 429, 500} {
		if count[code] > 0 {
			fmt.Printf("  %d -> %d\n", code, count[code])
		}
	}
	if errCount > 0 {
		fmt.Printf("  errors -> %d\n", errCount)
	}
}

// doJSON 发送 JSON 请求（支持附加请求头）。
func doJSON(client *http.Client, method, url string, body any, headers map[string]string) error {
	var r io.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		r = bytes.NewReader(b)
	}
	req, _ := http.NewRequest(method, url, r)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("status=%d body=%s", resp.StatusCode, string(b))
	}
	return nil
}

// getStats 读取后台统计，压测后核对订单数与库存是否一致。
func getStats(client *http.Client, baseURL, adminToken string) (map[string]int64, error) {
	req, _ := http.NewRequest(http.MethodGet, baseURL+"/api/admin/stats", nil)
	req.Header.Set("X-Admin-Token", adminToken)
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("status=%d body=%s", resp.StatusCode, string(b))
	}

	var out struct {
		Code int `json:"code"`
		Data struct {
			OrdersByStatus map[string]int64 `json:"orders_by_status"`
		} `json:"data"`
	}
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return out.Data.OrdersByStatus, nil
}
