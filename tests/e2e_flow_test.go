package tests

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ayukmesoh/storekeeper/internal/config"
	"github.com/ayukmesoh/storekeeper/internal/domain"
	"github.com/ayukmesoh/storekeeper/internal/server"
)

const testJWTSecret = "test-secret-key-123"

func testConfig() *config.Config {
	return &config.Config{
		JWT: config.JWTConfig{Secret: testJWTSecret},
		Billing: config.BillingConfig{
			TrialReminderDays:  3,
			ExpiryReminderDays: 365,
			RenewalWindowDays:  1,
			FailureThreshold:   3,
			BatchWorkers:       4,
			GatewayTimeout:     5 * time.Second,
			NotifyTimeout:      5 * time.Second,
			JobLeaseTTL:        time.Minute,
		},
	}
}

// TestBillingLifecycleFlow walks one shop through the whole billing story:
// onboarding with a trial, converting to a paid plan, paying, receiving a
// duplicate gateway webhook, switching plans, getting an expiry reminder from
// the batch job, and finally canceling.
func TestBillingLifecycleFlow(t *testing.T) {
	db, cleanupDB := SetupTestDB(t)
	defer cleanupDB()

	redisClient, _ := SetupTestRedis(t)

	app := server.NewApp(server.AppDependencies{
		Config:      testConfig(),
		MongoDB:     db,
		RedisClient: redisClient,
	})

	request := func(method, path, token string, body interface{}) *http.Response {
		var bodyReader io.Reader
		if body != nil {
			jsonBytes, _ := json.Marshal(body)
			bodyReader = bytes.NewReader(jsonBytes)
		}
		req, _ := http.NewRequest(method, path, bodyReader)
		req.Header.Set("Content-Type", "application/json")
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		resp, err := app.Test(req, -1)
		require.NoError(t, err)
		return resp
	}

	decode := func(resp *http.Response) map[string]interface{} {
		var data map[string]interface{}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&data))
		return data
	}

	adminToken := MintToken(t, testJWTSecret, "user-admin", "", domain.RoleSuperAdmin)
	ownerToken := MintToken(t, testJWTSecret, "user-owner", "", domain.RoleOwner)

	// ==========================================
	// STEP 1: Admin seeds the plan catalog
	// ==========================================
	resp := request("POST", "/api/admin/plans", adminToken, map[string]interface{}{
		"name":  "Standard Monthly",
		"type":  "monthly",
		"price": 5000,
	})
	require.Equal(t, 201, resp.StatusCode)
	monthlyPlanID := decode(resp)["id"].(string)

	resp = request("POST", "/api/admin/plans", adminToken, map[string]interface{}{
		"name":  "Standard Yearly",
		"type":  "yearly",
		"price": 50000,
	})
	require.Equal(t, 201, resp.StatusCode)
	yearlyPlanID := decode(resp)["id"].(string)

	resp = request("GET", "/api/plans", ownerToken, nil)
	assert.Equal(t, 200, resp.StatusCode)
	assert.EqualValues(t, 2, decode(resp)["count"])

	fmt.Println("✓ Plan catalog seeded")

	// ==========================================
	// STEP 2: Owner onboards a shop, trial starts
	// ==========================================
	resp = request("POST", "/api/shops", ownerToken, map[string]string{
		"name":  "Mesoh General Store",
		"phone": "237670000001",
		"email": "shop@example.com",
	})
	require.Equal(t, 201, resp.StatusCode)
	onboard := decode(resp)

	shop := onboard["shop"].(map[string]interface{})
	sub := onboard["subscription"].(map[string]interface{})
	shopID := shop["id"].(string)
	subID := sub["id"].(string)
	require.NotEmpty(t, shopID)
	require.NotEmpty(t, subID)
	assert.Equal(t, "trial", sub["status"].(string))

	// Tokens issued after onboarding carry the shop scope.
	shopToken := MintToken(t, testJWTSecret, "user-owner", shopID, domain.RoleOwner)

	resp = request("GET", "/api/shops/"+shopID+"/subscription/status", shopToken, nil)
	assert.Equal(t, 200, resp.StatusCode)
	status := decode(resp)
	assert.Equal(t, "trial", status["status"].(string))
	assert.Equal(t, "trial", status["display_status"].(string))

	// A token scoped to a different shop is rejected.
	strangerToken := MintToken(t, testJWTSecret, "user-other", "some-other-shop", domain.RoleOwner)
	resp = request("GET", "/api/shops/"+shopID+"/subscription", strangerToken, nil)
	assert.Equal(t, 403, resp.StatusCode)

	fmt.Println("✓ Shop onboarded with trial subscription")

	// ==========================================
	// STEP 3: Convert trial to the monthly plan
	// ==========================================
	resp = request("POST", "/api/subscriptions/"+subID+"/convert", shopToken, map[string]interface{}{
		"plan_id":        monthlyPlanID,
		"payment_method": "momo",
	})
	require.Equal(t, 200, resp.StatusCode)
	converted := decode(resp)
	assert.Equal(t, "active", converted["status"].(string))

	// Converting twice is not possible.
	resp = request("POST", "/api/subscriptions/"+subID+"/convert", shopToken, map[string]interface{}{
		"plan_id": monthlyPlanID,
	})
	assert.Equal(t, 422, resp.StatusCode)

	fmt.Println("✓ Trial converted to paid plan")

	// ==========================================
	// STEP 4: Pay via the mock gateway
	// ==========================================
	resp = request("POST", "/api/subscriptions/"+subID+"/pay", shopToken, nil)
	require.Equal(t, 200, resp.StatusCode)
	payData := decode(resp)
	assert.Equal(t, true, payData["success"])

	fmt.Println("✓ Charge approved and reconciled")

	// ==========================================
	// STEP 5: Gateway webhook, delivered twice
	// ==========================================
	webhook := map[string]string{
		"transactionId": "TX-E2E-1",
		"externalId":    subID,
		"status":        "SUCCESSFUL",
		"amount":        "5000",
		"currency":      "XAF",
	}
	resp = request("POST", "/api/payments/webhook/momo", "", webhook)
	require.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, "Payment processed", decode(resp)["message"])

	resp = request("POST", "/api/payments/webhook/momo", "", webhook)
	require.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, "Payment already processed", decode(resp)["message"])

	fmt.Println("✓ Webhook idempotent on transaction ID")

	// ==========================================
	// STEP 6: Switch to the yearly plan
	// ==========================================
	resp = request("POST", "/api/subscriptions/"+subID+"/change-plan", shopToken, map[string]interface{}{
		"plan_id": yearlyPlanID,
	})
	require.Equal(t, 200, resp.StatusCode)
	changed := decode(resp)
	plan := changed["plan"].(map[string]interface{})
	assert.Equal(t, "Standard Yearly", plan["name"].(string))

	fmt.Println("✓ Plan changed")

	// ==========================================
	// STEP 7: Batch job sends the expiry reminder
	// ==========================================
	resp = request("POST", "/api/admin/jobs/expiryReminders", adminToken, nil)
	require.Equal(t, 200, resp.StatusCode)
	summary := decode(resp)
	assert.EqualValues(t, 1, summary["processed"])
	assert.EqualValues(t, 1, summary["succeeded"])

	resp = request("GET", "/api/shops/"+shopID+"/notifications", shopToken, nil)
	require.Equal(t, 200, resp.StatusCode)
	notifications := decode(resp)["notifications"].([]interface{})
	found := false
	for _, n := range notifications {
		if n.(map[string]interface{})["event_type"] == "subscription_expiring" {
			found = true
		}
	}
	assert.True(t, found, "expected a subscription_expiring notification")

	// Idempotent: a second run finds nothing to remind.
	resp = request("POST", "/api/admin/jobs/expiryReminders", adminToken, nil)
	require.Equal(t, 200, resp.StatusCode)
	assert.EqualValues(t, 0, decode(resp)["processed"])

	fmt.Println("✓ Expiry reminder sent once")

	// ==========================================
	// STEP 8: Cancel immediately, shop suspended
	// ==========================================
	resp = request("POST", "/api/subscriptions/"+subID+"/cancel", shopToken, map[string]interface{}{
		"reason":           "closing the business",
		"immediate_effect": true,
	})
	require.Equal(t, 200, resp.StatusCode)
	canceled := decode(resp)
	assert.Equal(t, "canceled", canceled["status"].(string))

	resp = request("GET", "/api/shops/"+shopID, shopToken, nil)
	require.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, "suspended", decode(resp)["status"].(string))

	// Canceling twice fails cleanly.
	resp = request("POST", "/api/subscriptions/"+subID+"/cancel", shopToken, map[string]interface{}{
		"reason": "again",
	})
	assert.Equal(t, 422, resp.StatusCode)

	fmt.Println("✓ Subscription canceled, shop suspended")
}

// TestProductAndAccountCRUD covers the tenant-scoped catalog and staff
// management endpoints.
func TestProductAndAccountCRUD(t *testing.T) {
	db, cleanupDB := SetupTestDB(t)
	defer cleanupDB()

	redisClient, _ := SetupTestRedis(t)

	app := server.NewApp(server.AppDependencies{
		Config:      testConfig(),
		MongoDB:     db,
		RedisClient: redisClient,
	})

	request := func(method, path, token string, body interface{}) *http.Response {
		var bodyReader io.Reader
		if body != nil {
			jsonBytes, _ := json.Marshal(body)
			bodyReader = bytes.NewReader(jsonBytes)
		}
		req, _ := http.NewRequest(method, path, bodyReader)
		req.Header.Set("Content-Type", "application/json")
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		resp, err := app.Test(req, -1)
		require.NoError(t, err)
		return resp
	}

	decode := func(resp *http.Response) map[string]interface{} {
		var data map[string]interface{}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&data))
		return data
	}

	ownerToken := MintToken(t, testJWTSecret, "user-owner", "", domain.RoleOwner)
	resp := request("POST", "/api/shops", ownerToken, map[string]string{
		"name": "CRUD Shop",
	})
	require.Equal(t, 201, resp.StatusCode)
	shopID := decode(resp)["shop"].(map[string]interface{})["id"].(string)
	shopToken := MintToken(t, testJWTSecret, "user-owner", shopID, domain.RoleOwner)

	// Products
	resp = request("POST", "/api/shops/"+shopID+"/products", shopToken, map[string]interface{}{
		"name":     "Bag of Rice 50kg",
		"price":    32000,
		"quantity": 10,
	})
	require.Equal(t, 201, resp.StatusCode)
	product := decode(resp)
	productID := product["id"].(string)
	assert.Equal(t, "XAF", product["currency"].(string))

	newPrice := int64(30000)
	resp = request("PUT", "/api/shops/"+shopID+"/products/"+productID, shopToken, map[string]interface{}{
		"price": newPrice,
	})
	require.Equal(t, 200, resp.StatusCode)
	assert.EqualValues(t, newPrice, decode(resp)["price"])

	resp = request("GET", "/api/shops/"+shopID+"/products", shopToken, nil)
	require.Equal(t, 200, resp.StatusCode)
	assert.EqualValues(t, 1, decode(resp)["count"])

	resp = request("DELETE", "/api/shops/"+shopID+"/products/"+productID, shopToken, nil)
	assert.Equal(t, 200, resp.StatusCode)

	resp = request("GET", "/api/shops/"+shopID+"/products/"+productID, shopToken, nil)
	assert.Equal(t, 404, resp.StatusCode)

	// Accounts
	resp = request("POST", "/api/shops/"+shopID+"/accounts", shopToken, map[string]interface{}{
		"email": "staff@example.com",
		"name":  "First Staff",
	})
	require.Equal(t, 201, resp.StatusCode)
	staff := decode(resp)
	staffID := staff["id"].(string)
	assert.Equal(t, []interface{}{"staff"}, staff["roles"])

	// Duplicate email is rejected.
	resp = request("POST", "/api/shops/"+shopID+"/accounts", shopToken, map[string]interface{}{
		"email": "staff@example.com",
		"name":  "Duplicate Staff",
	})
	assert.Equal(t, 409, resp.StatusCode)

	resp = request("DELETE", "/api/shops/"+shopID+"/accounts/"+staffID, shopToken, nil)
	assert.Equal(t, 200, resp.StatusCode)
}
