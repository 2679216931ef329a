package handlers_test

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/dhiraj-eng07/Airtable-Connected-Dynamic-Form-Builder/internal/airtable"
	"github.com/dhiraj-eng07/Airtable-Connected-Dynamic-Form-Builder/internal/handlers"
	"github.com/dhiraj-eng07/Airtable-Connected-Dynamic-Form-Builder/internal/middleware"
	"github.com/dhiraj-eng07/Airtable-Connected-Dynamic-Form-Builder/internal/models"
	"github.com/dhiraj-eng07/Airtable-Connected-Dynamic-Form-Builder/internal/repository"
	"github.com/dhiraj-eng07/Airtable-Connected-Dynamic-Form-Builder/internal/services"
	"github.com/dhiraj-eng07/Airtable-Connected-Dynamic-Form-Builder/internal/utils"
)

const (
	testSecret = "test-webhook-secret"
	testToken  = "patTestToken"
	testBase   = "appTestBase"
	testTable  = "tblTestTable"
)

// airtableStub is a minimal in-memory Airtable API behind httptest.
type airtableStub struct {
	mu      sync.Mutex
	records map[string]map[string]any
	nextID  int
	failAll bool
}

func newAirtableStub() *airtableStub {
	return &airtableStub{records: make(map[string]map[string]any)}
}

func (s *airtableStub) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		defer s.mu.Unlock()

		if s.failAll {
			w.WriteHeader(http.StatusInternalServerError)
			fmt.Fprint(w, `{"error":{"type":"SERVER_ERROR","message":"boom"}}`)
			return
		}

		parts := strings.Split(strings.TrimPrefix(r.URL.Path, "/"), "/")
		switch {
		// GET /v0/meta/bases/{base}/tables
		case r.Method == http.MethodGet && len(parts) == 5 && parts[1] == "meta":
			fmt.Fprintf(w, `{"tables":[{"id":%q,"name":"Signups","fields":[
				{"id":"fldName","name":"Name","type":"singleLineText"},
				{"id":"fldPlan","name":"Plan","type":"singleSelect"},
				{"id":"fldDiscount","name":"Discount","type":"singleLineText"}]}]}`, testTable)

		// GET /v0/{base}/{table} (list, single page)
		case r.Method == http.MethodGet && len(parts) == 3:
			records := make([]map[string]any, 0, len(s.records))
			for id, fields := range s.records {
				records = append(records, map[string]any{
					"id":          id,
					"fields":      fields,
					"createdTime": time.Now().UTC().Format(time.RFC3339),
				})
			}
			_ = json.NewEncoder(w).Encode(map[string]any{"records": records})

		// GET /v0/{base}/{table}/{record}
		case r.Method == http.MethodGet && len(parts) == 4:
			fields, ok := s.records[parts[3]]
			if !ok {
				w.WriteHeader(http.StatusNotFound)
				fmt.Fprint(w, `{"error":{"type":"NOT_FOUND","message":"record not found"}}`)
				return
			}
			writeRecord(w, parts[3], fields)

		// POST /v0/{base}/{table}
		case r.Method == http.MethodPost && len(parts) == 3:
			var body struct {
				Fields map[string]any `json:"fields"`
			}
			_ = json.NewDecoder(r.Body).Decode(&body)
			s.nextID++
			id := fmt.Sprintf("recStub%03d", s.nextID)
			s.records[id] = body.Fields
			writeRecord(w, id, body.Fields)

		// PATCH /v0/{base}/{table}/{record}
		case r.Method == http.MethodPatch && len(parts) == 4:
			var body struct {
				Fields map[string]any `json:"fields"`
			}
			_ = json.NewDecoder(r.Body).Decode(&body)
			s.records[parts[3]] = body.Fields
			writeRecord(w, parts[3], body.Fields)

		// DELETE /v0/{base}/{table}/{record}
		case r.Method == http.MethodDelete && len(parts) == 4:
			delete(s.records, parts[3])
			fmt.Fprintf(w, `{"deleted":true,"id":%q}`, parts[3])

		default:
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprint(w, `{"error":{"type":"NOT_FOUND","message":"no route"}}`)
		}
	})
}

func writeRecord(w http.ResponseWriter, id string, fields map[string]any) {
	_ = json.NewEncoder(w).Encode(map[string]any{
		"id":          id,
		"fields":      fields,
		"createdTime": time.Now().UTC().Format(time.RFC3339),
	})
}

type testApp struct {
	app       *fiber.App
	db        *gorm.DB
	stub      *airtableStub
	forms     repository.Forms
	responses repository.Responses
}

// setupApp wires the full handler stack over an in-memory SQLite database
// and a stubbed Airtable API
func setupApp(t *testing.T) *testApp {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}
	// Webhook processing writes from several goroutines; a single connection
	// keeps them on the same in-memory database.
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("Failed to get database handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	err = db.AutoMigrate(
		&models.Form{},
		&models.Question{},
		&models.Response{},
		&models.Credential{},
	)
	if err != nil {
		t.Fatalf("Failed to migrate test database: %v", err)
	}

	stub := newAirtableStub()
	server := httptest.NewServer(stub.handler())
	t.Cleanup(server.Close)

	slogger := slog.New(slog.NewTextHandler(io.Discard, nil))

	forms := repository.NewForms(db)
	responses := repository.NewResponses(db)
	credentials := repository.NewCredentials(db)
	factory := airtable.NewFactory(server.URL, slogger)
	clients := services.NewCredentialClients(credentials, factory)

	syncService := services.NewSyncService(forms, responses, clients, 10, services.DelayPolicy{}, slogger)
	formService := services.NewFormService(forms, clients, slogger)
	responseService := services.NewResponseService(forms, responses, syncService, clients, slogger)

	app := fiber.New()
	formHandler := &handlers.FormHandler{Forms: formService, Sync: syncService}
	responseHandler := &handlers.ResponseHandler{Responses: responseService}
	webhookHandler := &handlers.WebhookHandler{Sync: syncService}

	api := app.Group("/api")
	api.Post("/forms", formHandler.CreateForm)
	api.Get("/forms/:id", formHandler.GetForm)
	api.Put("/forms/:id/questions", formHandler.UpdateQuestions)
	api.Post("/forms/:id/publish", formHandler.Publish)
	api.Post("/forms/:id/resync", formHandler.Resync)
	api.Post("/forms/:id/responses", responseHandler.Submit)
	api.Get("/forms/:id/responses", responseHandler.List)
	api.Post("/forms/:id/visibility", responseHandler.Visibility)
	api.Put("/responses/:id", responseHandler.Edit)
	api.Delete("/responses/:id", responseHandler.Delete)
	api.Post("/webhooks/airtable", middleware.VerifySignature(testSecret), webhookHandler.Handle)

	return &testApp{
		app:       app,
		db:        db,
		stub:      stub,
		forms:     forms,
		responses: responses,
	}
}

// seedCredentialAndForm stores a usable credential and a published form
// bound to the stub table.
func seedCredentialAndForm(t *testing.T, ta *testApp) *models.Form {
	t.Helper()

	cred := models.Credential{OwnerID: "owner-1", Token: testToken}
	if err := ta.db.Create(&cred).Error; err != nil {
		t.Fatalf("Failed to seed credential: %v", err)
	}

	now := time.Now()
	form := &models.Form{
		ID:              uuid.NewString(),
		OwnerID:         "owner-1",
		Title:           "Signups",
		ExternalBaseID:  testBase,
		ExternalTableID: testTable,
		PublishedAt:     &now,
	}
	if err := ta.db.Create(form).Error; err != nil {
		t.Fatalf("Failed to seed form: %v", err)
	}

	discount := models.Question{
		ID: uuid.NewString(), FormID: form.ID, Key: "discount",
		ExternalFieldID: "fldDiscount", Label: "Discount", Type: models.QuestionShortText,
		Position: 2,
	}
	if err := discount.SetRule(&models.ConditionalRule{
		Logic: models.LogicAnd,
		Conditions: []models.Condition{
			{QuestionKey: "plan", Operator: models.OpEquals, Value: "pro"},
		},
	}); err != nil {
		t.Fatalf("Failed to set rule: %v", err)
	}

	questions := []models.Question{
		{
			ID: uuid.NewString(), FormID: form.ID, Key: "name",
			ExternalFieldID: "fldName", Label: "Name", Type: models.QuestionShortText,
			Required: true, Position: 0,
		},
		{
			ID: uuid.NewString(), FormID: form.ID, Key: "plan",
			ExternalFieldID: "fldPlan", Label: "Plan", Type: models.QuestionSingleSelect,
			Position: 1,
		},
		discount,
	}
	for i := range questions {
		if err := ta.db.Create(&questions[i]).Error; err != nil {
			t.Fatalf("Failed to seed question: %v", err)
		}
	}
	form.Version = 1
	if err := ta.db.Save(form).Error; err != nil {
		t.Fatalf("Failed to bump form version: %v", err)
	}
	return form
}

func sign(body []byte) string {
	mac := hmac.New(sha256.New, []byte(testSecret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func webhookBody(action string, recordIDs ...string) []byte {
	body, _ := json.Marshal(map[string]any{
		"base": map[string]string{"id": testBase},
		"webhook": map[string]any{
			"action":    action,
			"tableId":   testTable,
			"recordIds": recordIDs,
		},
	})
	return body
}

// TestWebhookValidSignature tests a signed createdRecords delivery end to end
func TestWebhookValidSignature(t *testing.T) {
	ta := setupApp(t)
	seedCredentialAndForm(t, ta)

	ta.stub.records["recA"] = map[string]any{"fldName": "Ada", "fldPlan": "pro"}

	body := webhookBody("createdRecords", "recA")
	req := httptest.NewRequest("POST", "/api/webhooks/airtable", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(middleware.SignatureHeader, sign(body))

	resp, err := ta.app.Test(req, -1)
	if err != nil {
		t.Fatalf("Failed to execute request: %v", err)
	}
	if resp.StatusCode != 200 {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}

	var result map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if result["success"] != true {
		t.Errorf("Expected success true, got %v", result["success"])
	}

	var response models.Response
	if err := ta.db.Where("external_record_id = ?", "recA").First(&response).Error; err != nil {
		t.Fatalf("Expected mirrored response: %v", err)
	}
	if response.Status != models.StatusSynced {
		t.Errorf("Expected status synced, got %s", response.Status)
	}
}

// TestWebhookTamperedBody tests that a modified body fails verification
func TestWebhookTamperedBody(t *testing.T) {
	ta := setupApp(t)
	seedCredentialAndForm(t, ta)

	body := webhookBody("createdRecords", "recA")
	signature := sign(body)
	tampered := bytes.Replace(body, []byte("recA"), []byte("recB"), 1)

	req := httptest.NewRequest("POST", "/api/webhooks/airtable", bytes.NewReader(tampered))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(middleware.SignatureHeader, signature)

	resp, err := ta.app.Test(req, -1)
	if err != nil {
		t.Fatalf("Failed to execute request: %v", err)
	}
	if resp.StatusCode != 401 {
		t.Errorf("Expected status 401, got %d", resp.StatusCode)
	}
}

// TestWebhookMissingSignature tests rejection of unsigned deliveries
func TestWebhookMissingSignature(t *testing.T) {
	ta := setupApp(t)

	body := webhookBody("createdRecords", "recA")
	req := httptest.NewRequest("POST", "/api/webhooks/airtable", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := ta.app.Test(req, -1)
	if err != nil {
		t.Fatalf("Failed to execute request: %v", err)
	}
	if resp.StatusCode != 401 {
		t.Errorf("Expected status 401, got %d", resp.StatusCode)
	}
}

// TestSubmitResponseEndToEnd tests intake, visibility filtering, and push
func TestSubmitResponseEndToEnd(t *testing.T) {
	ta := setupApp(t)
	form := seedCredentialAndForm(t, ta)

	// plan is basic, so the discount answer must be discarded
	body, _ := json.Marshal(map[string]any{
		"answers": map[string]any{
			"name":     "Ada",
			"plan":     "basic",
			"discount": "SAVE20",
		},
	})
	req := httptest.NewRequest("POST", "/api/forms/"+form.ID+"/responses", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := ta.app.Test(req, -1)
	if err != nil {
		t.Fatalf("Failed to execute request: %v", err)
	}
	if resp.StatusCode != 201 {
		t.Fatalf("Expected status 201, got %d", resp.StatusCode)
	}

	var result struct {
		ResponseID string `json:"responseId"`
		Status     string `json:"status"`
		Synced     bool   `json:"synced"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if !result.Synced {
		t.Error("Expected submission to sync")
	}
	if result.Status != string(models.StatusSynced) {
		t.Errorf("Expected synced status, got %s", result.Status)
	}

	// The pushed record must not contain the hidden discount field
	if len(ta.stub.records) != 1 {
		t.Fatalf("Expected 1 pushed record, got %d", len(ta.stub.records))
	}
	for _, fields := range ta.stub.records {
		if _, ok := fields["fldDiscount"]; ok {
			t.Error("Hidden discount answer leaked into the pushed record")
		}
		if fields["fldName"] != "Ada" {
			t.Errorf("Expected fldName Ada, got %v", fields["fldName"])
		}
	}
}

// TestSubmitValidationFailure tests the 422 envelope for a missing required answer
func TestSubmitValidationFailure(t *testing.T) {
	ta := setupApp(t)
	form := seedCredentialAndForm(t, ta)

	body, _ := json.Marshal(map[string]any{
		"answers": map[string]any{"plan": "basic"},
	})
	req := httptest.NewRequest("POST", "/api/forms/"+form.ID+"/responses", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := ta.app.Test(req, -1)
	if err != nil {
		t.Fatalf("Failed to execute request: %v", err)
	}
	if resp.StatusCode != 422 {
		t.Errorf("Expected status 422, got %d", resp.StatusCode)
	}

	var result map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if result["type"] != "validation" {
		t.Errorf("Expected validation type, got %v", result["type"])
	}
}

// TestSubmitSurvivesAirtableOutage tests the accepted-but-unsynced path
func TestSubmitSurvivesAirtableOutage(t *testing.T) {
	ta := setupApp(t)
	form := seedCredentialAndForm(t, ta)
	ta.stub.failAll = true

	body, _ := json.Marshal(map[string]any{
		"answers": map[string]any{"name": "Ada"},
	})
	req := httptest.NewRequest("POST", "/api/forms/"+form.ID+"/responses", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := ta.app.Test(req, -1)
	if err != nil {
		t.Fatalf("Failed to execute request: %v", err)
	}
	if resp.StatusCode != 201 {
		t.Fatalf("Expected status 201, got %d", resp.StatusCode)
	}

	var result struct {
		Synced    bool   `json:"synced"`
		Status    string `json:"status"`
		SyncError string `json:"syncError"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if result.Synced {
		t.Error("Expected synced false during outage")
	}
	if result.Status != string(models.StatusFailed) {
		t.Errorf("Expected failed status, got %s", result.Status)
	}
	if result.SyncError == "" {
		t.Error("Expected a sync error message")
	}
}

// TestVisibilityEndpoint tests rule evaluation over partial answers
func TestVisibilityEndpoint(t *testing.T) {
	ta := setupApp(t)
	form := seedCredentialAndForm(t, ta)

	body, _ := json.Marshal(map[string]any{
		"answers": map[string]any{"plan": "pro"},
	})
	req := httptest.NewRequest("POST", "/api/forms/"+form.ID+"/visibility", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := ta.app.Test(req, -1)
	if err != nil {
		t.Fatalf("Failed to execute request: %v", err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("Expected status 200, got %d", resp.StatusCode)
	}

	var result struct {
		VisibleQuestions []string `json:"visibleQuestions"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	want := []string{"name", "plan", "discount"}
	if len(result.VisibleQuestions) != len(want) {
		t.Fatalf("Expected %v, got %v", want, result.VisibleQuestions)
	}
	for i, key := range want {
		if result.VisibleQuestions[i] != key {
			t.Errorf("Expected %v, got %v", want, result.VisibleQuestions)
			break
		}
	}
}

// TestUpdateQuestionsVersionConflict tests the 409 version envelope
func TestUpdateQuestionsVersionConflict(t *testing.T) {
	ta := setupApp(t)
	form := seedCredentialAndForm(t, ta)

	body, _ := json.Marshal(map[string]any{
		"version": form.Version + 5,
		"questions": []map[string]any{
			{"key": "name", "externalFieldId": "fldName", "label": "Name"},
		},
	})
	req := httptest.NewRequest("PUT", "/api/forms/"+form.ID+"/questions", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := ta.app.Test(req, -1)
	if err != nil {
		t.Fatalf("Failed to execute request: %v", err)
	}
	if resp.StatusCode != 409 {
		t.Fatalf("Expected status 409, got %d", resp.StatusCode)
	}

	var result utils.ErrorResponseStruct
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if !result.VersionError {
		t.Error("Expected versionError true")
	}
	if result.Type != "version" {
		t.Errorf("Expected version type, got %s", result.Type)
	}
}

// TestCreateFormEndpoint tests form creation against the stub schema
func TestCreateFormEndpoint(t *testing.T) {
	ta := setupApp(t)

	cred := models.Credential{OwnerID: "owner-1", Token: testToken}
	if err := ta.db.Create(&cred).Error; err != nil {
		t.Fatalf("Failed to seed credential: %v", err)
	}

	body, _ := json.Marshal(map[string]any{
		"ownerId": "owner-1",
		"title":   "Signups",
		"baseId":  testBase,
		"tableId": testTable,
		"questions": []map[string]any{
			{"key": "name", "externalFieldId": "fldName", "label": "Name", "required": true},
			{"key": "plan", "externalFieldId": "fldPlan", "label": "Plan"},
		},
	})
	req := httptest.NewRequest("POST", "/api/forms", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := ta.app.Test(req, -1)
	if err != nil {
		t.Fatalf("Failed to execute request: %v", err)
	}
	if resp.StatusCode != 201 {
		raw, _ := io.ReadAll(resp.Body)
		t.Fatalf("Expected status 201, got %d: %s", resp.StatusCode, raw)
	}

	var form models.Form
	if err := json.NewDecoder(resp.Body).Decode(&form); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if len(form.Questions) != 2 {
		t.Fatalf("Expected 2 questions, got %d", len(form.Questions))
	}
	if form.Questions[0].Type != models.QuestionShortText {
		t.Errorf("Expected shortText, got %s", form.Questions[0].Type)
	}
	if form.Questions[1].Type != models.QuestionSingleSelect {
		t.Errorf("Expected singleSelect, got %s", form.Questions[1].Type)
	}
}

// TestResyncEndpoint tests the full-table walk trigger
func TestResyncEndpoint(t *testing.T) {
	ta := setupApp(t)
	form := seedCredentialAndForm(t, ta)

	ta.stub.records["recA"] = map[string]any{"fldName": "Ada"}
	ta.stub.records["recB"] = map[string]any{"fldName": "Grace"}

	req := httptest.NewRequest("POST", "/api/forms/"+form.ID+"/resync", nil)
	resp, err := ta.app.Test(req, -1)
	if err != nil {
		t.Fatalf("Failed to execute request: %v", err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("Expected status 200, got %d", resp.StatusCode)
	}

	var result struct {
		SyncedCount int `json:"syncedCount"`
		ErrorCount  int `json:"errorCount"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if result.SyncedCount != 2 {
		t.Errorf("Expected 2 synced records, got %d", result.SyncedCount)
	}
}
