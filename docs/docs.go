// Package docs provides the swagger specification.
// Regenerate with: swag init
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {
            "name": "API Support"
        },
        "license": {
            "name": "MIT",
            "url": "https://opensource.org/licenses/MIT"
        },
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/api/v1/campaigns": {
            "get": {
                "produces": ["application/json"],
                "tags": ["campaigns"],
                "summary": "List campaigns",
                "parameters": [
                    {"type": "string", "name": "x-api-key", "in": "header", "required": true},
                    {"type": "integer", "name": "userId", "in": "query", "required": true}
                ],
                "responses": {"200": {"description": "OK"}}
            },
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["campaigns"],
                "summary": "Create a campaign",
                "parameters": [
                    {"type": "string", "name": "x-api-key", "in": "header", "required": true}
                ],
                "responses": {"201": {"description": "Created"}}
            }
        },
        "/api/v1/campaigns/{id}": {
            "get": {
                "produces": ["application/json"],
                "tags": ["campaigns"],
                "summary": "Get a campaign",
                "parameters": [
                    {"type": "string", "name": "x-api-key", "in": "header", "required": true},
                    {"type": "integer", "name": "id", "in": "path", "required": true}
                ],
                "responses": {"200": {"description": "OK"}}
            },
            "delete": {
                "tags": ["campaigns"],
                "summary": "Delete a campaign",
                "parameters": [
                    {"type": "string", "name": "x-api-key", "in": "header", "required": true},
                    {"type": "integer", "name": "id", "in": "path", "required": true}
                ],
                "responses": {"204": {"description": "No Content"}}
            }
        },
        "/api/v1/identities": {
            "get": {
                "produces": ["application/json"],
                "tags": ["identities"],
                "summary": "Get SMTP settings",
                "parameters": [
                    {"type": "string", "name": "x-api-key", "in": "header", "required": true},
                    {"type": "integer", "name": "userId", "in": "query", "required": true}
                ],
                "responses": {"200": {"description": "OK"}}
            },
            "put": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["identities"],
                "summary": "Create or replace SMTP settings",
                "parameters": [
                    {"type": "string", "name": "x-api-key", "in": "header", "required": true}
                ],
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/api/v1/messages": {
            "get": {
                "produces": ["application/json"],
                "tags": ["messages"],
                "summary": "Get all messages",
                "parameters": [
                    {"type": "string", "name": "x-api-key", "in": "header", "required": true},
                    {"type": "integer", "name": "page", "in": "query"},
                    {"type": "integer", "name": "pageSize", "in": "query"},
                    {"type": "string", "name": "status", "in": "query"}
                ],
                "responses": {"200": {"description": "OK"}}
            },
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["messages"],
                "summary": "Schedule a single email",
                "parameters": [
                    {"type": "string", "name": "x-api-key", "in": "header", "required": true}
                ],
                "responses": {"201": {"description": "Created"}}
            }
        },
        "/api/v1/messages/replay": {
            "post": {
                "produces": ["application/json"],
                "tags": ["messages"],
                "summary": "Replay all failed messages",
                "parameters": [
                    {"type": "string", "name": "x-api-key", "in": "header", "required": true}
                ],
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/api/v1/messages/stats": {
            "get": {
                "produces": ["application/json"],
                "tags": ["messages"],
                "summary": "Get message statistics",
                "parameters": [
                    {"type": "string", "name": "x-api-key", "in": "header", "required": true}
                ],
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/api/v1/messages/{id}": {
            "get": {
                "produces": ["application/json"],
                "tags": ["messages"],
                "summary": "Get a message",
                "parameters": [
                    {"type": "string", "name": "x-api-key", "in": "header", "required": true},
                    {"type": "integer", "name": "id", "in": "path", "required": true}
                ],
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/api/v1/messages/{id}/replay": {
            "post": {
                "produces": ["application/json"],
                "tags": ["messages"],
                "summary": "Replay a single failed message",
                "parameters": [
                    {"type": "string", "name": "x-api-key", "in": "header", "required": true},
                    {"type": "integer", "name": "id", "in": "path", "required": true}
                ],
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/api/v1/scheduler/start": {
            "post": {
                "produces": ["application/json"],
                "tags": ["scheduler"],
                "summary": "Start the dispatch scheduler",
                "parameters": [
                    {"type": "string", "name": "x-api-key", "in": "header", "required": true}
                ],
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/api/v1/scheduler/status": {
            "get": {
                "produces": ["application/json"],
                "tags": ["scheduler"],
                "summary": "Get scheduler status",
                "parameters": [
                    {"type": "string", "name": "x-api-key", "in": "header", "required": true}
                ],
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/api/v1/scheduler/stop": {
            "post": {
                "produces": ["application/json"],
                "tags": ["scheduler"],
                "summary": "Stop the dispatch scheduler",
                "parameters": [
                    {"type": "string", "name": "x-api-key", "in": "header", "required": true}
                ],
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/click/{token}": {
            "get": {
                "tags": ["tracking"],
                "summary": "Click tracking redirect",
                "parameters": [
                    {"type": "string", "name": "token", "in": "path", "required": true},
                    {"type": "string", "name": "url", "in": "query", "required": true}
                ],
                "responses": {"302": {"description": "Found"}, "400": {"description": "Bad Request"}}
            }
        },
        "/health": {
            "get": {
                "produces": ["application/json"],
                "tags": ["health"],
                "summary": "Health check",
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/track/{token}": {
            "get": {
                "produces": ["image/gif"],
                "tags": ["tracking"],
                "summary": "Open tracking beacon",
                "parameters": [
                    {"type": "string", "name": "token", "in": "path", "required": true}
                ],
                "responses": {"200": {"description": "OK"}}
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "localhost:8080",
	BasePath:         "/",
	Schemes:          []string{"http", "https"},
	Title:            "Nexus Mailer API",
	Description:      "Bulk email dispatch service with open and click tracking",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
