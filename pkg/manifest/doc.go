// Package manifest loads the YAML documents a planning run starts from.
//
// A manifest declares particle specifications, existing stores, remote slots
// and seed recipes:
//
//	name: products
//	particles:
//	  - name: ShowProducts
//	    connections:
//	      - {name: list, direction: in, type: "[Product]"}
//	    slots:
//	      - name: root
//	        provides:
//	          - {name: annotation, views: [list]}
//	stores:
//	  - {id: shortlist, type: "[Product]", tags: [shortlist]}
//	recipes:
//	  - name: show
//	    views:
//	      - {name: products, tags: [shortlist]}
//	    particles:
//	      - name: ShowProducts
//	        connections:
//	          - {name: list, view: products}
//
// Loading validates in three stages: struct tags (go-playground/validator),
// the CUE definition #Manifest, and cross references between recipe
// elements. Watcher reloads manifests when their files change.
package manifest
