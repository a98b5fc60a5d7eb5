package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "LIMS Intake Portal API",
        "description": "Equipment intake gateway: draft-backed intake sessions, committed record views, register exports and the customer review portal.",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http"
    ],
    "securityDefinitions": {
        "StaffBearer": {
            "type": "apiKey",
            "name": "Authorization",
            "in": "header",
            "description": "Staff JWT, sent as: Bearer <token>"
        },
        "ReviewBearer": {
            "type": "apiKey",
            "name": "Authorization",
            "in": "header",
            "description": "Customer review token, sent as: Bearer <token> (query param token also accepted)"
        }
    },
    "tags": [
        {"name": "Sessions", "description": "Intake sessions: open/resume, edits, photos, submit"},
        {"name": "Records", "description": "Committed records, register exports"},
        {"name": "Review", "description": "Customer review links and remarks"}
    ],
    "paths": {
        "/sessions": {
            "post": {
                "tags": ["Sessions"],
                "summary": "Open an intake session (fresh, resume draft, or edit record)",
                "security": [{"StaffBearer": []}],
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/OpenSessionRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/sessions/{id}": {
            "get": {
                "tags": ["Sessions"],
                "summary": "Fetch current session state",
                "security": [{"StaffBearer": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "delete": {
                "tags": ["Sessions"],
                "summary": "Close a session; refuses on unsaved changes unless forced",
                "security": [{"StaffBearer": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "force", "in": "query", "type": "boolean"}
                ],
                "responses": {
                    "204": {"description": "No Content"},
                    "409": {"description": "Unsaved changes", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/sessions/{id}/form": {
            "patch": {
                "tags": ["Sessions"],
                "summary": "Patch header fields of the intake form",
                "security": [{"StaffBearer": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/UpdateFormRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/sessions/{id}/lines": {
            "post": {
                "tags": ["Sessions"],
                "summary": "Append a blank equipment row",
                "security": [{"StaffBearer": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Structural edits not allowed", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/sessions/{id}/lines/{index}": {
            "patch": {
                "tags": ["Sessions"],
                "summary": "Patch one equipment row",
                "security": [{"StaffBearer": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "index", "in": "path", "required": true, "type": "integer"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/UpdateLineRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "delete": {
                "tags": ["Sessions"],
                "summary": "Remove an equipment row; remaining rows renumber",
                "security": [{"StaffBearer": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "index", "in": "path", "required": true, "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/sessions/{id}/lines/{index}/routing": {
            "put": {
                "tags": ["Sessions"],
                "summary": "Switch a row's calibration routing",
                "security": [{"StaffBearer": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "index", "in": "path", "required": true, "type": "integer"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/SetRoutingRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/sessions/{id}/lines/{index}/photos": {
            "post": {
                "tags": ["Sessions"],
                "summary": "Stage a photo upload on a row",
                "security": [{"StaffBearer": []}],
                "consumes": ["multipart/form-data"],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "index", "in": "path", "required": true, "type": "integer"},
                    {"name": "photo", "in": "formData", "required": true, "type": "file"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "413": {"description": "Payload too large", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "delete": {
                "tags": ["Sessions"],
                "summary": "Detach a confirmed photo URL from a row",
                "security": [{"StaffBearer": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "index", "in": "path", "required": true, "type": "integer"},
                    {"name": "url", "in": "query", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/sessions/{id}/lines/{index}/photos/{photoId}": {
            "delete": {
                "tags": ["Sessions"],
                "summary": "Drop a staged photo before submit",
                "security": [{"StaffBearer": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "index", "in": "path", "required": true, "type": "integer"},
                    {"name": "photoId", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/sessions/{id}/submit": {
            "post": {
                "tags": ["Sessions"],
                "summary": "Commit the session to the records service",
                "security": [{"StaffBearer": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Validation failed", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/sessions/{id}/events": {
            "get": {
                "tags": ["Sessions"],
                "summary": "Stream autosave and lock transitions over WebSocket",
                "security": [{"StaffBearer": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "access_token", "in": "query", "type": "string", "description": "Staff JWT for clients that cannot set headers"}
                ],
                "responses": {
                    "101": {"description": "Switching Protocols"}
                }
            }
        },
        "/previews/{token}": {
            "get": {
                "tags": ["Sessions"],
                "summary": "Serve a staged photo preview by its opaque token",
                "produces": ["application/octet-stream"],
                "parameters": [
                    {"name": "token", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK"}
                }
            }
        },
        "/inwards/{id}": {
            "get": {
                "tags": ["Records"],
                "summary": "Committed record with display URLs, labels and live lock state",
                "security": [{"StaffBearer": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/inwards/{id}/export": {
            "get": {
                "tags": ["Records"],
                "summary": "Render the record's equipment register as csv, xlsx or pdf",
                "security": [{"StaffBearer": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "format", "in": "query", "type": "string", "enum": ["csv", "xlsx", "pdf"]}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/inwards/{id}/review-link": {
            "post": {
                "tags": ["Review"],
                "summary": "Issue a customer review link for a committed record",
                "security": [{"StaffBearer": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "schema": {"$ref": "#/definitions/IssueReviewLinkRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/exports/{token}": {
            "get": {
                "tags": ["Records"],
                "summary": "Download a rendered register export via its signed token",
                "produces": ["application/octet-stream"],
                "parameters": [
                    {"name": "token", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK"}
                }
            }
        },
        "/review/record": {
            "get": {
                "tags": ["Review"],
                "summary": "Record under review, scoped to the caller's review token",
                "security": [{"ReviewBearer": []}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "401": {"description": "Access code required or link invalid", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/review/unlock": {
            "post": {
                "tags": ["Review"],
                "summary": "Exchange the link's access code for a full review token",
                "security": [{"ReviewBearer": []}],
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/UnlockReviewRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/review/remarks/{lineId}": {
            "put": {
                "tags": ["Review"],
                "summary": "Store a customer remark against one equipment row",
                "security": [{"ReviewBearer": []}],
                "parameters": [
                    {"name": "lineId", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/SetRemarkRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/review/finalize": {
            "post": {
                "tags": ["Review"],
                "summary": "Push all remarks upstream and close the review",
                "security": [{"ReviewBearer": []}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Already finalized", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        }
    },
    "definitions": {
        "OpenSessionRequest": {
            "type": "object",
            "properties": {
                "mode": {"type": "string", "enum": ["fresh", "draft", "record"]},
                "draft_id": {"type": "string"},
                "record_id": {"type": "string"}
            },
            "required": ["mode"]
        },
        "UpdateFormRequest": {
            "type": "object",
            "properties": {
                "received_date": {"type": "string"},
                "customer_dc_date": {"type": "string"},
                "customer_id": {"type": "string"},
                "customer_name": {"type": "string"},
                "received_by": {"type": "string"}
            }
        },
        "UpdateLineRequest": {
            "type": "object",
            "properties": {
                "material_desc": {"type": "string"},
                "make": {"type": "string"},
                "model": {"type": "string"},
                "range": {"type": "string"},
                "serial_no": {"type": "string"},
                "qty": {"type": "string"},
                "inspe_notes": {"type": "string"},
                "supplier_name": {"type": "string"},
                "outbound_dc_no": {"type": "string"},
                "inbound_dc_no": {"type": "string"}
            }
        },
        "SetRoutingRequest": {
            "type": "object",
            "properties": {
                "mode": {"type": "string", "enum": ["in_house", "outsourced", "external_lab"]}
            },
            "required": ["mode"]
        },
        "SessionView": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "mode": {"type": "string"},
                "record_id": {"type": "string"},
                "resume_path": {"type": "string"},
                "form": {"type": "object"},
                "equipment_list": {
                    "type": "array",
                    "items": {"$ref": "#/definitions/LineView"}
                },
                "autosave": {"$ref": "#/definitions/AutosaveView"},
                "lock": {"$ref": "#/definitions/LockView"},
                "structural_edits_allowed": {"type": "boolean"},
                "serial_from_local_fallback": {"type": "boolean"},
                "created_at": {"type": "string"}
            }
        },
        "LineView": {
            "type": "object",
            "properties": {
                "item_no": {"type": "string"},
                "material_desc": {"type": "string"},
                "make": {"type": "string"},
                "model": {"type": "string"},
                "range": {"type": "string"},
                "serial_no": {"type": "string"},
                "qty": {"type": "string"},
                "inspe_notes": {"type": "string"},
                "calibration_mode": {"type": "string"},
                "outsource": {"type": "object"},
                "photos": {
                    "type": "array",
                    "items": {"$ref": "#/definitions/PhotoView"}
                },
                "has_deviation": {"type": "boolean"}
            }
        },
        "PhotoView": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "filename": {"type": "string"},
                "url": {"type": "string"},
                "confirmed": {"type": "boolean"}
            }
        },
        "AutosaveView": {
            "type": "object",
            "properties": {
                "state": {"type": "string", "enum": ["idle", "unsaved", "saving", "saved", "error"]},
                "draft_id": {"type": "string"},
                "dirty": {"type": "boolean"},
                "last_saved_at": {"type": "string"},
                "last_error": {"type": "string"}
            }
        },
        "LockView": {
            "type": "object",
            "properties": {
                "locked": {"type": "boolean"},
                "holder": {"type": "string"}
            }
        },
        "MutationResult": {
            "type": "object",
            "properties": {
                "applied": {"type": "boolean"},
                "session": {"$ref": "#/definitions/SessionView"}
            }
        },
        "SubmitResult": {
            "type": "object",
            "properties": {
                "applied": {"type": "boolean"},
                "record_id": {"type": "string"},
                "inward_no": {"type": "string"},
                "status": {"type": "string"},
                "lock": {"$ref": "#/definitions/LockView"}
            }
        },
        "RecordDetailView": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "inward_no": {"type": "string"},
                "received_date": {"type": "string"},
                "customer_dc_date": {"type": "string"},
                "customer_id": {"type": "string"},
                "customer_name": {"type": "string"},
                "received_by": {"type": "string"},
                "status": {"type": "string"},
                "lock": {"$ref": "#/definitions/LockView"},
                "equipment_list": {
                    "type": "array",
                    "items": {"$ref": "#/definitions/RecordLineView"}
                },
                "qr_code": {"type": "string"},
                "updated_at": {"type": "string"}
            }
        },
        "RecordLineView": {
            "type": "object",
            "properties": {
                "item_no": {"type": "string"},
                "material_desc": {"type": "string"},
                "make": {"type": "string"},
                "model": {"type": "string"},
                "range": {"type": "string"},
                "serial_no": {"type": "string"},
                "qty": {"type": "integer"},
                "inspe_notes": {"type": "string"},
                "calibration_mode": {"type": "string"},
                "supplier_name": {"type": "string"},
                "outbound_dc_no": {"type": "string"},
                "inbound_dc_no": {"type": "string"},
                "photo_urls": {
                    "type": "array",
                    "items": {"type": "string"}
                },
                "remark": {"type": "string"},
                "barcode": {"type": "string"}
            }
        },
        "ExportView": {
            "type": "object",
            "properties": {
                "url": {"type": "string"},
                "token": {"type": "string"},
                "format": {"type": "string"},
                "expires_at": {"type": "string"}
            }
        },
        "IssueReviewLinkRequest": {
            "type": "object",
            "properties": {
                "access_code": {"type": "string"},
                "ttl_hours": {"type": "integer"}
            }
        },
        "ReviewLinkView": {
            "type": "object",
            "properties": {
                "link_id": {"type": "string"},
                "url": {"type": "string"},
                "expires_at": {"type": "string"},
                "has_access_code": {"type": "boolean"}
            }
        },
        "UnlockReviewRequest": {
            "type": "object",
            "properties": {
                "access_code": {"type": "string"}
            },
            "required": ["access_code"]
        },
        "ReviewTokenView": {
            "type": "object",
            "properties": {
                "token": {"type": "string"},
                "expires_at": {"type": "string"}
            }
        },
        "ReviewRecordView": {
            "type": "object",
            "properties": {
                "record_id": {"type": "string"},
                "inward_no": {"type": "string"},
                "customer_name": {"type": "string"},
                "received_date": {"type": "string"},
                "status": {"type": "string"},
                "lock": {"$ref": "#/definitions/LockView"},
                "equipment_list": {
                    "type": "array",
                    "items": {"$ref": "#/definitions/ReviewLineView"}
                },
                "finalized": {"type": "boolean"}
            }
        },
        "ReviewLineView": {
            "type": "object",
            "properties": {
                "item_no": {"type": "string"},
                "material_desc": {"type": "string"},
                "make": {"type": "string"},
                "model": {"type": "string"},
                "range": {"type": "string"},
                "serial_no": {"type": "string"},
                "qty": {"type": "integer"},
                "inspe_notes": {"type": "string"},
                "photo_urls": {
                    "type": "array",
                    "items": {"type": "string"}
                },
                "remark": {"type": "string"}
            }
        },
        "SetRemarkRequest": {
            "type": "object",
            "properties": {
                "remark": {"type": "string"}
            }
        },
        "ReviewMutationResult": {
            "type": "object",
            "properties": {
                "applied": {"type": "boolean"},
                "record": {"$ref": "#/definitions/ReviewRecordView"}
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
