// Package querystore persists federated query definitions.
//
// Save and Load are a pure, deterministic encode/decode pair. The persisted
// form is a self-describing JSON document:
//
//	{
//	  "version": 1,
//	  "name": "sales",
//	  "graphs": [
//	    {
//	      "name": "orders",
//	      "roots": ["joined"],
//	      "nodes": [
//	        {"alias": "sqlSource", "type": "source", "source": "sqlSource"},
//	        {"alias": "excelSource", "type": "source", "source": "excelSource"},
//	        {"alias": "joined", "type": "join", "inputs": ["sqlSource", "excelSource"],
//	         "on": "[sqlSource.OrderID] = [excelSource.OrderID]", "kind": "inner"}
//	      ]
//	    }
//	  ]
//	}
//
// Load never trusts storage: documents are decoded strictly, nodes are
// ordered so inputs precede consumers, and every graph is rebuilt through
// graph.Builder against the live source registry.
package querystore
