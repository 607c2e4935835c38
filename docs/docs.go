// Package docs registers the swagger document served at /swagger.
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
    "paths": {
        "/healthz": {"get": {"tags": ["health"], "summary": "Health check", "responses": {"200": {"description": "OK"}}}},
        "/readyz": {"get": {"tags": ["health"], "summary": "Readiness check", "responses": {"200": {"description": "OK"}, "503": {"description": "Service Unavailable"}}}},
        "/api/v1/accounts/{owner_id}/provision": {"post": {"tags": ["accounts"], "summary": "Provision paper wallets for an owner",
            "parameters": [{"type": "integer", "name": "owner_id", "in": "path", "required": true}],
            "responses": {"200": {"description": "OK"}}}},
        "/api/v1/accounts/{owner_id}/wallets": {"get": {"tags": ["accounts"], "summary": "List an owner's wallets",
            "parameters": [{"type": "integer", "name": "owner_id", "in": "path", "required": true}],
            "responses": {"200": {"description": "OK"}, "404": {"description": "Not Found"}}}},
        "/api/v1/positions": {
            "get": {"tags": ["positions"], "summary": "List an owner's positions",
                "parameters": [
                    {"type": "integer", "name": "owner_id", "in": "query", "required": true},
                    {"type": "string", "name": "product", "in": "query"},
                    {"type": "string", "name": "status", "in": "query"},
                    {"type": "integer", "name": "limit", "in": "query"},
                    {"type": "integer", "name": "offset", "in": "query"}
                ],
                "responses": {"200": {"description": "OK"}}},
            "post": {"tags": ["positions"], "summary": "Open a leveraged position", "consumes": ["application/json"],
                "parameters": [{"name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/openPositionRequest"}}],
                "responses": {"200": {"description": "OK"}, "400": {"description": "Bad Request"}, "402": {"description": "Payment Required"}, "404": {"description": "Not Found"}}}
        },
        "/api/v1/positions/{id}": {"get": {"tags": ["positions"], "summary": "Get a position",
            "parameters": [{"type": "string", "name": "id", "in": "path", "required": true}],
            "responses": {"200": {"description": "OK"}, "404": {"description": "Not Found"}}}},
        "/api/v1/positions/{id}/orders": {"get": {"tags": ["positions"], "summary": "List the fill records of a position",
            "parameters": [{"type": "string", "name": "id", "in": "path", "required": true}],
            "responses": {"200": {"description": "OK"}}}},
        "/api/v1/positions/{id}/close": {"post": {"tags": ["positions"], "summary": "Close a position at the current price", "consumes": ["application/json"],
            "parameters": [
                {"type": "string", "name": "id", "in": "path", "required": true},
                {"name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/closePositionRequest"}}
            ],
            "responses": {"200": {"description": "OK"}, "400": {"description": "Bad Request"}, "409": {"description": "Conflict"}}}},
        "/api/v1/positions/{id}/liquidate": {"post": {"tags": ["positions"], "summary": "Force-liquidate a position at the current price",
            "parameters": [{"type": "string", "name": "id", "in": "path", "required": true}],
            "responses": {"200": {"description": "OK"}, "404": {"description": "Not Found"}}}},
        "/api/v1/risk/{owner_id}/summary": {"get": {"tags": ["risk"], "summary": "Risk summary of an owner's open positions",
            "parameters": [{"type": "integer", "name": "owner_id", "in": "path", "required": true}],
            "responses": {"200": {"description": "OK"}, "404": {"description": "Not Found"}}}},
        "/api/v1/risk/sweep": {"post": {"tags": ["risk"], "summary": "Run one risk sweep now", "responses": {"200": {"description": "OK"}}}},
        "/api/v1/settings": {"get": {"tags": ["settings"], "summary": "List feature switches", "responses": {"200": {"description": "OK"}}}},
        "/api/v1/settings/{key}": {
            "get": {"tags": ["settings"], "summary": "Get a feature switch",
                "parameters": [{"type": "string", "name": "key", "in": "path", "required": true}],
                "responses": {"200": {"description": "OK"}, "404": {"description": "Not Found"}}},
            "put": {"tags": ["settings"], "summary": "Turn a feature switch on or off", "consumes": ["application/json"],
                "parameters": [
                    {"type": "string", "name": "key", "in": "path", "required": true},
                    {"name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/putSwitchRequest"}}
                ],
                "responses": {"200": {"description": "OK"}}}
        }
    },
    "definitions": {
        "openPositionRequest": {"type": "object", "required": ["owner_id", "symbol", "side", "product"],
            "properties": {
                "owner_id": {"type": "integer"},
                "symbol": {"type": "string"},
                "side": {"type": "string"},
                "quantity": {"type": "string"},
                "leverage": {"type": "integer"},
                "product": {"type": "string"}
            }},
        "closePositionRequest": {"type": "object", "required": ["owner_id"], "properties": {"owner_id": {"type": "integer"}}},
        "putSwitchRequest": {"type": "object", "required": ["enabled"], "properties": {"enabled": {"type": "boolean"}}}
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "0.1.0",
	Host:             "localhost:8080",
	BasePath:         "/",
	Schemes:          []string{"http"},
	Title:            "Paper Trade Risk API",
	Description:      "Leveraged paper positions, wallets and liquidation monitoring.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
