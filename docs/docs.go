package docs

import "github.com/swaggo/swag"

const docTemplate = `{
  "swagger": "2.0",
  "info": {
    "title": "Dispatch Orchestrator",
    "description": "Emergency call triage, priority queueing and operator assignment",
    "version": "1.0"
  },
  "basePath": "/",
  "paths": {
    "/healthz": {"get": {"tags": ["health"], "summary": "Liveness and archive connectivity", "responses": {"200": {"description": "OK"}, "503": {"description": "Database unavailable"}}}},
    "/api/state": {"get": {"tags": ["state"], "summary": "System snapshot", "responses": {"200": {"description": "OK"}}}},
    "/api/calls": {
      "get": {"tags": ["calls"], "summary": "List calls", "responses": {"200": {"description": "OK"}}},
      "post": {"tags": ["calls"], "summary": "Create call", "responses": {"201": {"description": "Created"}, "400": {"description": "Invalid request"}}}
    },
    "/api/calls/{id}": {"get": {"tags": ["calls"], "summary": "Call details", "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}], "responses": {"200": {"description": "OK"}, "404": {"description": "Not found"}}}},
    "/api/calls/{id}/message": {"post": {"tags": ["calls"], "summary": "Send caller text", "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}], "responses": {"200": {"description": "OK"}, "404": {"description": "Not found"}, "409": {"description": "Call ended"}}}},
    "/api/calls/{id}/disconnect": {"post": {"tags": ["calls"], "summary": "Disconnect call", "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}], "responses": {"200": {"description": "OK"}, "404": {"description": "Not found"}}}},
    "/api/calls/{id}/archive": {"post": {"tags": ["calls"], "summary": "Archive call", "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}], "responses": {"200": {"description": "OK"}, "401": {"description": "Admin key required"}, "404": {"description": "Not found"}, "409": {"description": "Call still active"}}}},
    "/api/calls/{id}/assign": {"post": {"tags": ["calls"], "summary": "Force-assign call", "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}], "responses": {"200": {"description": "OK"}, "401": {"description": "Admin key required"}, "404": {"description": "Not found"}, "409": {"description": "Invalid state"}}}},
    "/api/operators": {
      "get": {"tags": ["operators"], "summary": "List operators", "responses": {"200": {"description": "OK"}}},
      "post": {"tags": ["operators"], "summary": "Register operator", "responses": {"200": {"description": "OK"}}}
    },
    "/api/operators/{id}": {"delete": {"tags": ["operators"], "summary": "Unregister operator", "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}], "responses": {"200": {"description": "OK"}, "401": {"description": "Admin key required"}, "404": {"description": "Not found"}}}},
    "/api/operators/{id}/complete": {"post": {"tags": ["operators"], "summary": "Complete operator call", "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}], "responses": {"200": {"description": "OK"}, "404": {"description": "Not found"}}}},
    "/api/records": {"get": {"tags": ["records"], "summary": "Archived call records", "parameters": [{"name": "limit", "in": "query", "type": "integer"}], "responses": {"200": {"description": "OK"}, "503": {"description": "Archive disabled"}}}},
    "/api/records/{id}/transcript": {"get": {"tags": ["records"], "summary": "Archived call transcript", "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}], "responses": {"200": {"description": "OK"}, "404": {"description": "Not found"}, "503": {"description": "Archive disabled"}}}}
  }
}`

func init() {
	swag.Register(swag.Name, &s{})
}

type s struct{}

func (s *s) ReadDoc() string {
	return docTemplate
}
