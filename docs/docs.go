// Package docs registers the OpenAPI description served at /swagger/doc.json.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {},
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "securityDefinitions": {
        "BearerAuth": {"type": "apiKey", "name": "Authorization", "in": "header"}
    },
    "security": [{"BearerAuth": []}],
    "paths": {
        "/chat/token": {"get": {"summary": "Client token for the video/chat SDK", "responses": {"200": {"description": "OK"}, "401": {"description": "Unauthorized"}}}},
        "/execute": {"post": {"summary": "Run a code snippet", "responses": {"200": {"description": "OK"}, "400": {"description": "Unsupported language"}, "502": {"description": "Executor failed"}, "504": {"description": "Execution timed out"}}}},
        "/sessions": {"post": {"summary": "Create a session", "responses": {"201": {"description": "Created"}, "400": {"description": "Invalid problems"}, "502": {"description": "Provider failed"}}}},
        "/sessions/active": {"get": {"summary": "Active sessions, newest first", "responses": {"200": {"description": "OK"}}}},
        "/sessions/my-recent": {"get": {"summary": "Caller's completed sessions, newest first", "responses": {"200": {"description": "OK"}}}},
        "/sessions/{id}": {"get": {"summary": "Get a session", "responses": {"200": {"description": "OK"}, "404": {"description": "Not found"}}}},
        "/sessions/{id}/join": {"post": {"summary": "Join as participant", "responses": {"200": {"description": "OK"}, "400": {"description": "Completed or own session"}, "404": {"description": "Not found"}, "409": {"description": "Session full"}}}},
        "/sessions/{id}/end": {"post": {"summary": "End a session", "responses": {"200": {"description": "OK"}, "400": {"description": "Already completed"}, "403": {"description": "Not host"}, "404": {"description": "Not found"}}}},
        "/sessions/{id}/notes": {
            "get": {"summary": "Evaluation notes", "responses": {"200": {"description": "OK"}, "403": {"description": "Not host"}}},
            "post": {"summary": "Partially update evaluation notes", "responses": {"200": {"description": "OK"}, "403": {"description": "Not host"}}}
        },
        "/sessions/{id}/decision": {"patch": {"summary": "Set or clear the hiring decision", "responses": {"200": {"description": "OK"}, "400": {"description": "Invalid decision"}}}},
        "/sessions/{id}/timings": {"patch": {"summary": "Replace per-problem timings", "responses": {"200": {"description": "OK"}, "400": {"description": "Invalid timings"}}}},
        "/sessions/{id}/activeProblem": {"patch": {"summary": "Advance the active problem", "responses": {"200": {"description": "OK"}, "409": {"description": "Switch in progress"}}}},
        "/sessions/{id}/switch": {"post": {"summary": "Checkpoint, advance and hand off the next problem", "responses": {"200": {"description": "OK"}, "409": {"description": "Switch in progress"}}}},
        "/sessions/{id}/code/{problemId}": {
            "get": {"summary": "Saved code for a problem", "responses": {"200": {"description": "OK"}}},
            "patch": {"summary": "Save code for a problem", "responses": {"200": {"description": "OK"}}}
        },
        "/sessions/{id}/execute": {"post": {"summary": "Run code and share the output with the room", "responses": {"200": {"description": "OK"}}}},
        "/ws/rooms/{roomId}": {"get": {"summary": "Realtime room channel (WebSocket, token query param)", "responses": {"101": {"description": "Switching Protocols"}}}}
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "localhost:8080",
	BasePath:         "/v1",
	Schemes:          []string{},
	Title:            "CodePair Interview API",
	Description:      "Two-party coding interview sessions with a synchronized editor",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
