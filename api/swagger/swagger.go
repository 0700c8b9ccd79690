package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "CaseVault API",
        "description": "Secure case document uploads and data-retention compliance",
        "version": "1.0.0"
    },
    "basePath": "/",
    "schemes": [
        "http",
        "https"
    ],
    "securityDefinitions": {
        "BearerAuth": {"type": "apiKey", "name": "Authorization", "in": "header"}
    },
    "tags": [
        {"name": "Uploads", "description": "Upload tokens, quarantine intake and scan status"},
        {"name": "Compliance", "description": "Retention queue, antivirus and reconciliation passes"}
    ],
    "paths": {
        "/health": {
            "get": {
                "summary": "Health check",
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/ready": {
            "get": {
                "summary": "Readiness check",
                "responses": {"200": {"description": "Ready"}}
            }
        },
        "/api/v1/uploads/presign": {
            "post": {
                "tags": ["Uploads"],
                "summary": "Request an upload capability token",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"in": "body", "name": "payload", "required": true, "schema": {"$ref": "#/definitions/PresignUploadRequest"}}
                ],
                "responses": {
                    "201": {"description": "Token issued", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Invalid size, extension or payload"},
                    "403": {"description": "Case belongs to another client"},
                    "404": {"description": "Case not found"},
                    "409": {"description": "Case does not accept uploads"}
                }
            }
        },
        "/gateway/uploads/{token}": {
            "put": {
                "tags": ["Uploads"],
                "summary": "Upload a file body into quarantine",
                "consumes": ["application/octet-stream"],
                "parameters": [
                    {"in": "path", "name": "token", "required": true, "type": "string"},
                    {"in": "header", "name": "X-Upload-Filename", "required": false, "type": "string"}
                ],
                "responses": {
                    "201": {"description": "Stored in quarantine", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "File does not match token claims"},
                    "403": {"description": "Token invalid or expired"},
                    "409": {"description": "Token already used"},
                    "413": {"description": "File too large"}
                }
            }
        },
        "/api/v1/uploads/confirm": {
            "post": {
                "tags": ["Uploads"],
                "summary": "Confirm an upload and schedule its scan",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"in": "body", "name": "payload", "required": true, "schema": {"$ref": "#/definitions/ConfirmUploadRequest"}}
                ],
                "responses": {
                    "202": {"description": "Scan scheduled", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Upload already scanned"}
                }
            }
        },
        "/api/v1/uploads/{id}": {
            "get": {
                "tags": ["Uploads"],
                "summary": "Get upload status",
                "security": [{"BearerAuth": []}],
                "parameters": [{"in": "path", "name": "id", "required": true, "type": "string"}],
                "responses": {
                    "200": {"description": "Upload", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not found"}
                }
            }
        },
        "/api/v1/cases/{caseId}/uploads": {
            "get": {
                "tags": ["Uploads"],
                "summary": "List the uploads of a case",
                "security": [{"BearerAuth": []}],
                "parameters": [{"in": "path", "name": "caseId", "required": true, "type": "string"}],
                "responses": {"200": {"description": "Uploads", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/api/v1/admin/retention/enqueue": {
            "post": {
                "tags": ["Compliance"],
                "summary": "Enqueue records past their retention window",
                "security": [{"BearerAuth": []}],
                "responses": {"200": {"description": "Summary", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/api/v1/admin/retention/execute": {
            "post": {
                "tags": ["Compliance"],
                "summary": "Execute queued retention actions",
                "security": [{"BearerAuth": []}],
                "responses": {"200": {"description": "Summary", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/api/v1/admin/retention/queue": {
            "get": {
                "tags": ["Compliance"],
                "summary": "List or export the retention queue",
                "security": [{"BearerAuth": []}],
                "produces": ["application/json", "text/csv", "application/pdf"],
                "parameters": [
                    {"in": "query", "name": "category", "type": "string"},
                    {"in": "query", "name": "pending", "type": "boolean"},
                    {"in": "query", "name": "format", "type": "string", "enum": ["json", "csv", "pdf"]},
                    {"in": "query", "name": "limit", "type": "integer"},
                    {"in": "query", "name": "offset", "type": "integer"}
                ],
                "responses": {"200": {"description": "Queue entries or rendered document"}}
            }
        },
        "/api/v1/admin/scans/run": {
            "post": {
                "tags": ["Compliance"],
                "summary": "Run one antivirus pass now",
                "security": [{"BearerAuth": []}],
                "responses": {"200": {"description": "Summary", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/api/v1/admin/reconcile/run": {
            "post": {
                "tags": ["Compliance"],
                "summary": "Report storage and database inconsistencies",
                "security": [{"BearerAuth": []}],
                "responses": {"200": {"description": "Issues found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        }
    },
    "definitions": {
        "PresignUploadRequest": {
            "type": "object",
            "required": ["caseId", "filename", "contentType", "sizeBytes"],
            "properties": {
                "caseId": {"type": "string", "format": "uuid"},
                "filename": {"type": "string"},
                "contentType": {"type": "string"},
                "sizeBytes": {"type": "integer"}
            }
        },
        "ConfirmUploadRequest": {
            "type": "object",
            "required": ["uploadId"],
            "properties": {
                "uploadId": {"type": "string", "format": "uuid"}
            }
        },
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
