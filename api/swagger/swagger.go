package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "Asterism API",
        "description": "Live class sync: device linking, file pushes and live watch",
        "version": "1.0.0"
    },
    "basePath": "/",
    "schemes": [
        "https",
        "http"
    ],
    "tags": [
        {"name": "Link", "description": "Pair a lightweight client with a signed-in user"},
        {"name": "Sync", "description": "Client pushes and pulls"},
        {"name": "Exercises", "description": "Exercise sources and signed bundles"},
        {"name": "Watch", "description": "Live view of student edits"},
        {"name": "Exports", "description": "Snapshot exports for staff"},
        {"name": "Observability", "description": "Health, readiness and counters"}
    ],
    "paths": {
        "/health": {
            "get": {
                "tags": ["Observability"],
                "summary": "Health check",
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/ready": {
            "get": {
                "tags": ["Observability"],
                "summary": "Readiness check",
                "responses": {
                    "200": {"description": "Ready"},
                    "503": {"description": "A dependency is unavailable"}
                }
            }
        },
        "/stats": {
            "get": {
                "tags": ["Observability"],
                "summary": "Server counters",
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/{course}/{section}/start/{uuid}": {
            "get": {
                "tags": ["Link"],
                "summary": "Confirm a client link",
                "parameters": [
                    {"name": "course", "in": "path", "required": true, "type": "string"},
                    {"name": "section", "in": "path", "required": true, "type": "string"},
                    {"name": "uuid", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "Linked", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "302": {"description": "Redirect to login"},
                    "409": {"description": "Ticket bound to another user", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/{course}/{section}/await/{uuid}": {
            "get": {
                "tags": ["Link"],
                "summary": "Wait for a link confirmation",
                "produces": ["text/plain"],
                "parameters": [
                    {"name": "course", "in": "path", "required": true, "type": "string"},
                    {"name": "section", "in": "path", "required": true, "type": "string"},
                    {"name": "uuid", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "User token", "schema": {"type": "string"}},
                    "408": {"description": "Not confirmed in time"},
                    "429": {"description": "Too many waiters from this address"}
                }
            }
        },
        "/{course}/{section}/push/{exercise}/{file}/{token}": {
            "post": {
                "tags": ["Sync"],
                "summary": "Push a file version",
                "consumes": ["application/x-www-form-urlencoded"],
                "parameters": [
                    {"name": "course", "in": "path", "required": true, "type": "string"},
                    {"name": "section", "in": "path", "required": true, "type": "string"},
                    {"name": "exercise", "in": "path", "required": true, "type": "string"},
                    {"name": "file", "in": "path", "required": true, "type": "string"},
                    {"name": "token", "in": "path", "required": true, "type": "string"},
                    {"name": "content", "in": "formData", "required": true, "type": "string"}
                ],
                "responses": {
                    "204": {"description": "Stored"},
                    "403": {"description": "Invalid or expired token"},
                    "413": {"description": "Content too large"}
                }
            }
        },
        "/{course}/{section}/pull/{exercise}/{file}/{token}": {
            "get": {
                "tags": ["Sync"],
                "summary": "Fetch the caller's latest version",
                "produces": ["text/plain"],
                "parameters": [
                    {"name": "course", "in": "path", "required": true, "type": "string"},
                    {"name": "section", "in": "path", "required": true, "type": "string"},
                    {"name": "exercise", "in": "path", "required": true, "type": "string"},
                    {"name": "file", "in": "path", "required": true, "type": "string"},
                    {"name": "token", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "File content", "schema": {"type": "string"}},
                    "404": {"description": "Nothing pushed yet"}
                }
            }
        },
        "/{course}/{section}/exercise/{exercise}": {
            "get": {
                "tags": ["Exercises"],
                "summary": "Describe an exercise (staff)",
                "parameters": [
                    {"name": "course", "in": "path", "required": true, "type": "string"},
                    {"name": "section", "in": "path", "required": true, "type": "string"},
                    {"name": "exercise", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ExerciseDescriptor"}},
                    "403": {"description": "Not staff"}
                }
            }
        },
        "/bundle/{signature}/{course}/{section}/{archive}": {
            "get": {
                "tags": ["Exercises"],
                "summary": "Download an exercise bundle",
                "produces": ["application/zip"],
                "parameters": [
                    {"name": "signature", "in": "path", "required": true, "type": "string"},
                    {"name": "course", "in": "path", "required": true, "type": "string"},
                    {"name": "section", "in": "path", "required": true, "type": "string"},
                    {"name": "archive", "in": "path", "required": true, "type": "string", "description": "<exercise>.zip"}
                ],
                "responses": {
                    "200": {"description": "Zip archive"},
                    "403": {"description": "Bad signature"}
                }
            }
        },
        "/{course}/{section}/watch/{exercise}/{file}": {
            "get": {
                "tags": ["Watch"],
                "summary": "Watch live edits (WebSocket)",
                "parameters": [
                    {"name": "course", "in": "path", "required": true, "type": "string"},
                    {"name": "section", "in": "path", "required": true, "type": "string"},
                    {"name": "exercise", "in": "path", "required": true, "type": "string"},
                    {"name": "file", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "101": {"description": "Switching protocols; messages follow WatchMessage"},
                    "403": {"description": "Not staff"}
                }
            }
        },
        "/{course}/{section}/export/{exercise}/{file}": {
            "get": {
                "tags": ["Exports"],
                "summary": "Export the current snapshot of a file",
                "produces": ["text/csv", "application/pdf"],
                "parameters": [
                    {"name": "course", "in": "path", "required": true, "type": "string"},
                    {"name": "section", "in": "path", "required": true, "type": "string"},
                    {"name": "exercise", "in": "path", "required": true, "type": "string"},
                    {"name": "file", "in": "path", "required": true, "type": "string"},
                    {"name": "format", "in": "query", "type": "string", "enum": ["csv", "pdf"]}
                ],
                "responses": {
                    "200": {"description": "Rendered export"},
                    "403": {"description": "Not staff"}
                }
            }
        }
    },
    "definitions": {
        "APIError": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "message": {"type": "string"},
                "status": {"type": "integer"}
            }
        },
        "ResponseEnvelope": {
            "type": "object",
            "properties": {
                "data": {"type": "object"},
                "error": {"$ref": "#/definitions/APIError"},
                "meta": {"type": "object"}
            }
        },
        "ExerciseFile": {
            "type": "object",
            "properties": {
                "name": {"type": "string"},
                "content": {"type": "string"},
                "marked": {"type": "boolean"}
            }
        },
        "ExerciseDescriptor": {
            "type": "object",
            "properties": {
                "course": {"type": "string"},
                "section": {"type": "string"},
                "exercise": {"type": "string"},
                "bundle_url": {"type": "string"},
                "files": {"type": "array", "items": {"$ref": "#/definitions/ExerciseFile"}}
            }
        },
        "WatchMessage": {
            "type": "object",
            "properties": {
                "username": {"type": "string"},
                "content": {"type": "string"},
                "file": {"type": "string"}
            }
        }
    }
}`

type swaggerDoc struct{}

// ReadDoc returns the Swagger document.
func (s *swaggerDoc) ReadDoc() string {
	return docTemplate
}

func init() {
	swag.Register(swag.Name, &swaggerDoc{})
}
