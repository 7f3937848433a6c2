// Package flowfile reads graph documents from YAML, so flows can live in a
// repository next to the code that serves them.
//
// A minimal flow:
//
//	id: sales
//	nodes:
//	  - id: START
//	    edges: [triage]
//	  - id: triage
//	    type: supervisor.router
//	    conditional_edges:
//	      - to: [agent, completion.tool_call.redirect]
//	  - id: agent
//	    type: completion.model
//	    instructions:
//	      - Eres un asistente de ventas.
//	    edges: [END]
//
// Nodes referenced but missing are reported when the document is loaded into
// a graph.Graph, not here.
package flowfile
