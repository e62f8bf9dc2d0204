package httpapi

import (
	"encoding/json"
	"net/http"
	"testing"

	"lovedev.org/internal/auth"
)

func serviceToken(t *testing.T, svc *auth.Service) string {
	t.Helper()
	token, err := svc.Codec().ServiceToken("admin-cli")
	if err != nil {
		t.Fatalf("ServiceToken: %v", err)
	}
	return token
}

func TestAdminUserRoleEndpoints(t *testing.T) {
	a, svc := newTestAPI(t)
	user := activeUser(t, svc, "ada@example.com")
	token := serviceToken(t, svc)
	base := "/v1/admin/users/" + user.ID + "/roles"

	rec := do(t, a, http.MethodPost, base, token, `{"role":"ADMIN"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("add role: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	data, _ := decodeBody(t, rec)["data"].(map[string]any)
	roles, _ := json.Marshal(data["roles"])
	if string(roles) != `["ROLE_ADMIN","ROLE_USER"]` && string(roles) != `["ROLE_USER","ROLE_ADMIN"]` {
		t.Fatalf("unexpected roles: %s", roles)
	}

	rec = do(t, a, http.MethodDelete, base, token, `{"role":"USER"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("remove role: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	// The one remaining role cannot be removed.
	rec = do(t, a, http.MethodDelete, base, token, `{"role":"ADMIN"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 on last role, got %d", rec.Code)
	}
	errObj, _ := decodeBody(t, rec)["error"].(map[string]any)
	if errObj["error"] != "LAST_ROLE" {
		t.Fatalf("unexpected error code: %v", errObj)
	}

	rec = do(t, a, http.MethodPut, base, token, `{"roles":["USER"]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("replace roles: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	data, _ = decodeBody(t, rec)["data"].(map[string]any)
	if data["primaryRole"] != auth.RoleUser {
		t.Fatalf("unexpected profile after replace: %v", data)
	}
}

func TestAdminUserStatusEndpoint(t *testing.T) {
	a, svc := newTestAPI(t)
	user := activeUser(t, svc, "ada@example.com")
	token := serviceToken(t, svc)
	path := "/v1/admin/users/" + user.ID + "/status"

	rec := do(t, a, http.MethodPut, path, token, `{"status":"banned"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	data, _ := decodeBody(t, rec)["data"].(map[string]any)
	if data["status"] != string(auth.StatusBanned) {
		t.Fatalf("unexpected status: %v", data)
	}

	rec = do(t, a, http.MethodPut, path, token, `{"status":"frozen"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown status, got %d", rec.Code)
	}
}

func TestAdminUserGetAndDelete(t *testing.T) {
	a, svc := newTestAPI(t)
	user := activeUser(t, svc, "ada@example.com")
	token := serviceToken(t, svc)
	path := "/v1/admin/users/" + user.ID

	rec := do(t, a, http.MethodGet, path, token, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	rec = do(t, a, http.MethodDelete, path, token, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("delete: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = do(t, a, http.MethodGet, path, token, "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", rec.Code)
	}
}

func TestAdminRoleCatalogEndpoints(t *testing.T) {
	a, svc := newTestAPI(t)
	token := serviceToken(t, svc)

	rec := do(t, a, http.MethodPost, "/v1/admin/roles", token, `{"name":"auditor","description":"read-only"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create role: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	data, _ := decodeBody(t, rec)["data"].(map[string]any)
	if data["name"] != "ROLE_AUDITOR" {
		t.Fatalf("unexpected role: %v", data)
	}
	roleID, _ := data["id"].(string)

	rec = do(t, a, http.MethodGet, "/v1/admin/roles", token, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("list roles: expected 200, got %d", rec.Code)
	}
	listData, _ := decodeBody(t, rec)["data"].(map[string]any)
	items, _ := listData["items"].([]any)
	if len(items) != 4 {
		t.Fatalf("expected 4 roles, got %d", len(items))
	}

	rec = do(t, a, http.MethodDelete, "/v1/admin/roles/role_admin", token, "")
	if rec.Code != http.StatusForbidden {
		t.Fatalf("system role delete: expected 403, got %d", rec.Code)
	}

	rec = do(t, a, http.MethodDelete, "/v1/admin/roles/"+roleID, token, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("delete role: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
}
