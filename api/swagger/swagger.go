package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "CivicSeva API",
        "description": "Citizen application lifecycle and escalation engine",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http"
    ],
    "tags": [
        {"name": "Auth", "description": "Authentication and session management"},
        {"name": "Applications", "description": "Application lifecycle, assignment and feedback"},
        {"name": "Notifications", "description": "Recipient-facing notification inbox"},
        {"name": "Users", "description": "Account administration"}
    ],
    "paths": {
        "/auth/login": {
            "post": {
                "tags": ["Auth"],
                "summary": "Authenticate with email and password",
                "responses": {
                    "200": {"description": "Token pair issued"},
                    "401": {"description": "Invalid credentials"}
                }
            }
        },
        "/auth/refresh": {
            "post": {
                "tags": ["Auth"],
                "summary": "Exchange a refresh token for a new token pair",
                "responses": {
                    "200": {"description": "Token pair issued"},
                    "401": {"description": "Refresh token expired or revoked"}
                }
            }
        },
        "/auth/logout": {
            "post": {
                "tags": ["Auth"],
                "summary": "Revoke the current refresh token",
                "responses": {
                    "204": {"description": "Session revoked"}
                }
            }
        },
        "/applications": {
            "post": {
                "tags": ["Applications"],
                "summary": "Submit a new application",
                "responses": {
                    "201": {"description": "Application created with tracking code and auto-approval deadline"},
                    "400": {"description": "Validation failed"}
                }
            }
        },
        "/applications/unassigned": {
            "get": {
                "tags": ["Applications"],
                "summary": "List applications awaiting acceptance, oldest first",
                "parameters": [
                    {"name": "after_submitted_at", "in": "query", "type": "string", "format": "date-time"},
                    {"name": "after_id", "in": "query", "type": "string"},
                    {"name": "limit", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "FIFO page of unassigned applications"}
                }
            }
        },
        "/applications/track/{code}": {
            "get": {
                "tags": ["Applications"],
                "summary": "Look up an application by tracking code",
                "parameters": [
                    {"name": "code", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "Application detail"},
                    "404": {"description": "Unknown tracking code"}
                }
            }
        },
        "/applications/{id}": {
            "get": {
                "tags": ["Applications"],
                "summary": "Get application detail",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "Application detail"},
                    "403": {"description": "Citizens may only view their own applications"}
                }
            }
        },
        "/applications/{id}/accept": {
            "post": {
                "tags": ["Applications"],
                "summary": "Accept an unassigned application",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "Application assigned to the caller"},
                    "409": {"description": "Already taken; the response meta carries the current state"}
                }
            }
        },
        "/applications/{id}/status": {
            "post": {
                "tags": ["Applications"],
                "summary": "Change the status of an application",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "Transition applied"},
                    "409": {"description": "Edge not allowed or state changed concurrently"}
                }
            }
        },
        "/applications/{id}/history": {
            "get": {
                "tags": ["Applications"],
                "summary": "List the status history of an application",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "Audit trail, oldest first"}
                }
            }
        },
        "/applications/{id}/export": {
            "get": {
                "tags": ["Applications"],
                "summary": "Export the application timeline as CSV or PDF",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "format", "in": "query", "type": "string", "enum": ["csv", "pdf"]}
                ],
                "responses": {
                    "200": {"description": "Timeline file"}
                }
            }
        },
        "/applications/{id}/feedback": {
            "post": {
                "tags": ["Applications"],
                "summary": "Record the citizen's verdict on a closed application",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "Feedback recorded; unsolved verdicts reopen the application"},
                    "409": {"description": "Feedback window closed"}
                }
            }
        },
        "/applications/{id}/feedback/eligibility": {
            "get": {
                "tags": ["Applications"],
                "summary": "Check whether feedback is currently open",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "Eligibility flag with optional reason"}
                }
            }
        },
        "/notifications": {
            "get": {
                "tags": ["Notifications"],
                "summary": "List the current user's notifications",
                "responses": {
                    "200": {"description": "Notifications, newest first"}
                }
            }
        },
        "/notifications/unread-count": {
            "get": {
                "tags": ["Notifications"],
                "summary": "Count unread notifications",
                "responses": {
                    "200": {"description": "Unread badge count"}
                }
            }
        },
        "/notifications/{id}/read": {
            "post": {
                "tags": ["Notifications"],
                "summary": "Mark a notification as read",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "204": {"description": "Acknowledged"}
                }
            }
        },
        "/users/me": {
            "get": {
                "tags": ["Users"],
                "summary": "Get the current user's profile",
                "responses": {
                    "200": {"description": "Profile"}
                }
            }
        },
        "/users/{id}/suspend": {
            "post": {
                "tags": ["Users"],
                "summary": "Suspend an account",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "204": {"description": "Account suspended and sessions revoked"}
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
                "pagination": {"type": "object"},
                "meta": {"type": "object"}
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
