// Copyright 2025 Raamsri Kumar <raam@tinkershack.in>
// Copyright 2025 The StrataSTOR Authors and Contributors
// SPDX-License-Identifier: Apache-2.0

package api

import "github.com/gin-gonic/gin"

// PDU Operations:
//
//	GET    /pdus                         List PDU statuses
//	  Response: {"result": {"pdus": {"rack-a": {...}}}}
//
//	POST   /pdus/sync                    Reconcile workers with the inventory
//	  Response: {"result": {"pdus": ["rack-a", ...]}}
//
//	GET    /pdus/:name                   PDU status with its latest port snapshot
//
// Port Operations:
//
//	GET    /pdus/:name/ports/:port_id    Get one port, waiting up to ?timeout=5s
//	                                     for the first successful poll
//
//	PATCH  /pdus/:name/ports/:port_id    Change state and/or reservation,
//	                                     bounded by ?timeout=5s
//	  Request:  {"state": "ON"} | {"reserved": true} | both
//	  Response: {"result": {"id": "0", "state": "ON", ...}} as polled after
//	            the change. With both fields the state is applied first.
func (h *PDUHandler) RegisterRoutes(router *gin.RouterGroup) {
	pdus := router.Group("/pdus")
	{
		pdus.GET("", h.ListPDUs)
		pdus.POST("/sync", h.Sync)
		pdus.GET("/:name", h.GetPDU)

		pdus.GET("/:name/ports/:port_id", h.GetPort)
		pdus.PATCH("/:name/ports/:port_id", h.UpdatePort)
	}
}
