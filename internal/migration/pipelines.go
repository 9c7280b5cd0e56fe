package migration

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"strconv"

	"policybridge/internal/collab"
	"policybridge/internal/registry/models"
	"policybridge/internal/resolver"
	"policybridge/internal/saga"
	dErrors "policybridge/pkg/domain-errors"
)

// Collaborator names as registered with the service resolver. cmd/server
// registers concrete handles under these names at startup.
const (
	SvcContentStore    = "content-store"
	SvcFileParser      = "file-parser"
	SvcSchemaMapper    = "schema-mapper"
	SvcRoutingEngine   = "routing-engine"
	SvcDocumentStore   = "document-store"
	SvcLineageRecorder = "lineage-recorder"
)

// Run context keys shared between steps of one pipeline run. Values are
// strings only; bulky artifacts live in the document store and are referenced
// by document id.
const (
	keyRunID         = "run_id"
	keyFileName      = "file_name"
	keyPayload       = "payload_b64"
	keyWave          = "wave"
	keySystemID      = "system_id"
	keyFileID        = "file_id"
	keyRecordsDoc    = "records_doc"
	keyRecordCount   = "record_count"
	keyProfileDoc    = "profile_doc"
	keySchemaID      = "schema_id"
	keySchemaVersion = "schema_version"
	keyMetadataDoc   = "metadata_doc"
	keyCanonicalDoc  = "canonical_doc"
	keyMappingDoc    = "mapping_doc"
	keyDecisions     = "decisions"
	keyDecisionsDoc  = "decisions_doc"
)

const (
	PipelineIngest = "ingest"
	PipelineMap    = "map_canonical"
	PipelineRoute  = "route"
)

// pipelineSteps names the forward steps of each pipeline in execution order.
var pipelineSteps = map[string][]string{
	PipelineIngest: {"acquire_source", "parse_records", "profile_quality", "extract_schema", "persist_metadata"},
	PipelineMap:    {"resolve_schema", "map_fields", "validate_model", "persist_mapping"},
	PipelineRoute:  {"extract_routing_keys", "evaluate_rules", "persist_routing", "update_registry"},
}

// Targets lists every replay target the pipelines record intents for, one
// per pipeline step, in a stable order. Feed transports that need their
// destinations declared up front (topic creation) use this.
func Targets() []string {
	var out []string
	for _, pipeline := range []string{PipelineIngest, PipelineMap, PipelineRoute} {
		for _, name := range pipelineSteps[pipeline] {
			out = append(out, pipeline+"-"+name)
		}
	}
	return out
}

func docKey(pipeline, runID, artifact string) string {
	return pipeline + ":" + runID + ":" + artifact
}

// storeArtifact persists an artifact as a JSON body plus flat attributes.
func storeArtifact(ctx context.Context, docs collab.DocumentStore, docID, kind string, body any, attrs map[string]any) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "encode "+kind+" artifact")
	}
	doc := map[string]any{"kind": kind, "body": string(raw)}
	for k, v := range attrs {
		doc[k] = v
	}
	return docs.StoreDocument(ctx, docID, doc)
}

func loadArtifact[T any](ctx context.Context, docs collab.DocumentStore, docID string) (T, error) {
	var out T
	doc, err := docs.RetrieveDocument(ctx, docID)
	if err != nil {
		return out, err
	}
	body, ok := doc["body"].(string)
	if !ok {
		return out, dErrors.Newf(dErrors.CodeInternal, "document %s has no body", docID)
	}
	if err := json.Unmarshal([]byte(body), &out); err != nil {
		return out, dErrors.Wrap(err, dErrors.CodeInternal, "decode document "+docID)
	}
	return out, nil
}

func (s *Service) contentStore(ctx context.Context) (collab.ContentStore, error) {
	return resolver.ResolveAs[collab.ContentStore](ctx, s.resolve, SvcContentStore)
}

func (s *Service) fileParser(ctx context.Context) (collab.FileParser, error) {
	return resolver.ResolveAs[collab.FileParser](ctx, s.resolve, SvcFileParser)
}

func (s *Service) schemaMapper(ctx context.Context) (collab.SchemaMapper, error) {
	return resolver.ResolveAs[collab.SchemaMapper](ctx, s.resolve, SvcSchemaMapper)
}

func (s *Service) routingEngine(ctx context.Context) (collab.RoutingEngine, error) {
	return resolver.ResolveAs[collab.RoutingEngine](ctx, s.resolve, SvcRoutingEngine)
}

func (s *Service) documentStore(ctx context.Context) (collab.DocumentStore, error) {
	return resolver.ResolveAs[collab.DocumentStore](ctx, s.resolve, SvcDocumentStore)
}

// step wraps a forward operation with the per-step bookkeeping every pipeline
// shares: a lineage edge and a success metric after the operation commits, a
// failure metric otherwise. The operation itself never sees either concern.
func (s *Service) step(pipeline, name, source, destination string,
	fn func(context.Context, saga.RunContext) error,
	comp func(context.Context, saga.Milestone) error,
) saga.Step {
	return saga.Step{
		Name:      name,
		Namespace: "migration." + pipeline + "." + name,
		Target:    pipeline + "-" + name,
		Execute: func(ctx context.Context, rc saga.RunContext) error {
			if err := fn(ctx, rc); err != nil {
				if s.metrics != nil {
					s.metrics.StepsFailed.WithLabelValues(pipeline, name).Inc()
				}
				return err
			}
			s.recordLineage(ctx, collab.LineageEdge{
				Source:      source,
				Operation:   name,
				Destination: destination,
				Metadata: map[string]string{
					"pipeline": pipeline,
					"run_id":   rc[keyRunID],
				},
			})
			if s.metrics != nil {
				s.metrics.StepsSucceeded.WithLabelValues(pipeline, name).Inc()
			}
			return nil
		},
		Compensate: comp,
	}
}

// recordLineage is best effort: a missing or failing recorder degrades
// provenance, it does not fail the migration step that already committed.
func (s *Service) recordLineage(ctx context.Context, edge collab.LineageEdge) {
	rec, err := resolver.ResolveAs[collab.LineageRecorder](ctx, s.resolve, SvcLineageRecorder)
	if err != nil {
		s.logger.WarnContext(ctx, "lineage recorder unavailable", "error", err)
		return
	}
	if err := rec.TrackLineage(ctx, edge); err != nil {
		s.logger.WarnContext(ctx, "lineage edge dropped", "operation", edge.Operation, "error", err)
		return
	}
	if s.metrics != nil {
		s.metrics.LineageEdges.Inc()
	}
}

func (s *Service) deleteDocument(ctx context.Context, docID string) error {
	if docID == "" {
		return nil
	}
	docs, err := s.documentStore(ctx)
	if err != nil {
		return err
	}
	return docs.DeleteDocument(ctx, docID)
}

// ingestSteps: acquire the source file, parse it, profile the parsed records,
// discover the source schema, persist the ingest metadata. Compensations
// remove whatever the forward step left behind and are safe to replay.
func (s *Service) ingestSteps() []saga.Step {
	return []saga.Step{
		s.step(PipelineIngest, "acquire_source", "legacy_system", SvcContentStore,
			func(ctx context.Context, rc saga.RunContext) error {
				cs, err := s.contentStore(ctx)
				if err != nil {
					return err
				}
				payload, err := base64.StdEncoding.DecodeString(rc[keyPayload])
				if err != nil {
					return dErrors.Wrap(err, dErrors.CodeBadRequest, "decode file payload")
				}
				meta, err := cs.Upload(ctx, rc[keyFileName], payload)
				if err != nil {
					return err
				}
				rc[keyFileID] = meta.FileID
				return nil
			},
			func(ctx context.Context, m saga.Milestone) error {
				cs, err := s.contentStore(ctx)
				if err != nil {
					return err
				}
				return cs.Delete(ctx, m.Context[keyFileID])
			},
		),
		s.step(PipelineIngest, "parse_records", SvcContentStore, SvcDocumentStore,
			func(ctx context.Context, rc saga.RunContext) error {
				parser, err := s.fileParser(ctx)
				if err != nil {
					return err
				}
				records, err := parser.Parse(ctx, rc[keyFileID])
				if err != nil {
					return err
				}
				docs, err := s.documentStore(ctx)
				if err != nil {
					return err
				}
				docID := docKey(PipelineIngest, rc[keyRunID], "records")
				if err := storeArtifact(ctx, docs, docID, "parsed_records", records, map[string]any{
					"file_id": rc[keyFileID],
					"count":   len(records),
				}); err != nil {
					return err
				}
				rc[keyRecordsDoc] = docID
				rc[keyRecordCount] = strconv.Itoa(len(records))
				return nil
			},
			func(ctx context.Context, m saga.Milestone) error {
				return s.deleteDocument(ctx, m.Context[keyRecordsDoc])
			},
		),
		s.step(PipelineIngest, "profile_quality", SvcDocumentStore, SvcDocumentStore,
			func(ctx context.Context, rc saga.RunContext) error {
				docs, err := s.documentStore(ctx)
				if err != nil {
					return err
				}
				records, err := loadArtifact[[]collab.ParsedRecord](ctx, docs, rc[keyRecordsDoc])
				if err != nil {
					return err
				}
				profile := profileRecords(records)
				docID := docKey(PipelineIngest, rc[keyRunID], "profile")
				if err := storeArtifact(ctx, docs, docID, "quality_profile", profile, nil); err != nil {
					return err
				}
				rc[keyProfileDoc] = docID
				return nil
			},
			func(ctx context.Context, m saga.Milestone) error {
				return s.deleteDocument(ctx, m.Context[keyProfileDoc])
			},
		),
		s.step(PipelineIngest, "extract_schema", SvcContentStore, SvcSchemaMapper,
			func(ctx context.Context, rc saga.RunContext) error {
				mapper, err := s.schemaMapper(ctx)
				if err != nil {
					return err
				}
				schema, err := mapper.DiscoverSchema(ctx, rc[keyFileID])
				if err != nil {
					return err
				}
				rc[keySchemaID] = schema.ID
				rc[keySchemaVersion] = schema.Version
				return nil
			},
			nil,
		),
		s.step(PipelineIngest, "persist_metadata", SvcSchemaMapper, SvcDocumentStore,
			func(ctx context.Context, rc saga.RunContext) error {
				docs, err := s.documentStore(ctx)
				if err != nil {
					return err
				}
				docID := docKey(PipelineIngest, rc[keyRunID], "metadata")
				meta := map[string]string{
					"file_id":        rc[keyFileID],
					"file_name":      rc[keyFileName],
					"schema_id":      rc[keySchemaID],
					"schema_version": rc[keySchemaVersion],
					"record_count":   rc[keyRecordCount],
					"wave":           rc[keyWave],
				}
				if err := storeArtifact(ctx, docs, docID, "ingest_metadata", meta, nil); err != nil {
					return err
				}
				rc[keyMetadataDoc] = docID
				return nil
			},
			func(ctx context.Context, m saga.Milestone) error {
				return s.deleteDocument(ctx, m.Context[keyMetadataDoc])
			},
		),
	}
}

// QualityProfile summarizes parsed records before they enter mapping. It is
// descriptive only; nothing downstream gates on it.
type QualityProfile struct {
	Total             int `json:"total"`
	DistinctPolicyIDs int `json:"distinct_policy_ids"`
	MissingPolicyID   int `json:"missing_policy_id"`
	EmptyRecords      int `json:"empty_records"`
}

func profileRecords(records []collab.ParsedRecord) QualityProfile {
	p := QualityProfile{Total: len(records)}
	seen := make(map[string]struct{}, len(records))
	for _, r := range records {
		if r.PolicyID == "" {
			p.MissingPolicyID++
		} else {
			seen[r.PolicyID] = struct{}{}
		}
		if len(r.Fields) == 0 {
			p.EmptyRecords++
		}
	}
	p.DistinctPolicyIDs = len(seen)
	return p
}

// mapSteps: resolve the source schema, map parsed records into the canonical
// model, validate them against it, persist the mapping artifact. Field
// transformation is the schema mapper's concern; MapToCanonical returns
// records already in target shape.
func (s *Service) mapSteps() []saga.Step {
	return []saga.Step{
		s.step(PipelineMap, "resolve_schema", SvcDocumentStore, SvcSchemaMapper,
			func(ctx context.Context, rc saga.RunContext) error {
				if rc[keySchemaID] != "" {
					return nil
				}
				mapper, err := s.schemaMapper(ctx)
				if err != nil {
					return err
				}
				schema, err := mapper.DiscoverSchema(ctx, rc[keyFileID])
				if err != nil {
					return err
				}
				rc[keySchemaID] = schema.ID
				rc[keySchemaVersion] = schema.Version
				return nil
			},
			nil,
		),
		s.step(PipelineMap, "map_fields", SvcSchemaMapper, SvcDocumentStore,
			func(ctx context.Context, rc saga.RunContext) error {
				docs, err := s.documentStore(ctx)
				if err != nil {
					return err
				}
				records, err := loadArtifact[[]collab.ParsedRecord](ctx, docs, rc[keyRecordsDoc])
				if err != nil {
					return err
				}
				mapper, err := s.schemaMapper(ctx)
				if err != nil {
					return err
				}
				schema := collab.SchemaRef{ID: rc[keySchemaID], Version: rc[keySchemaVersion]}
				canonical, err := mapper.MapToCanonical(ctx, schema, records)
				if err != nil {
					return err
				}
				docID := docKey(PipelineMap, rc[keyRunID], "canonical")
				if err := storeArtifact(ctx, docs, docID, "canonical_records", canonical, map[string]any{
					"schema_id": schema.ID,
					"count":     len(canonical),
				}); err != nil {
					return err
				}
				rc[keyCanonicalDoc] = docID
				return nil
			},
			func(ctx context.Context, m saga.Milestone) error {
				return s.deleteDocument(ctx, m.Context[keyCanonicalDoc])
			},
		),
		s.step(PipelineMap, "validate_model", SvcDocumentStore, SvcSchemaMapper,
			func(ctx context.Context, rc saga.RunContext) error {
				docs, err := s.documentStore(ctx)
				if err != nil {
					return err
				}
				canonical, err := loadArtifact[[]collab.CanonicalRecord](ctx, docs, rc[keyCanonicalDoc])
				if err != nil {
					return err
				}
				mapper, err := s.schemaMapper(ctx)
				if err != nil {
					return err
				}
				return mapper.ValidateAgainstModel(ctx, canonical)
			},
			nil,
		),
		s.step(PipelineMap, "persist_mapping", SvcSchemaMapper, SvcDocumentStore,
			func(ctx context.Context, rc saga.RunContext) error {
				docs, err := s.documentStore(ctx)
				if err != nil {
					return err
				}
				docID := docKey(PipelineMap, rc[keyRunID], "mapping")
				mapping := map[string]string{
					"schema_id":      rc[keySchemaID],
					"schema_version": rc[keySchemaVersion],
					"canonical_doc":  rc[keyCanonicalDoc],
					"records_doc":    rc[keyRecordsDoc],
				}
				if err := storeArtifact(ctx, docs, docID, "schema_mapping", mapping, nil); err != nil {
					return err
				}
				rc[keyMappingDoc] = docID
				return nil
			},
			func(ctx context.Context, m saga.Milestone) error {
				return s.deleteDocument(ctx, m.Context[keyMappingDoc])
			},
		),
	}
}

// routeSteps: derive routing keys for canonical records, evaluate the
// authored rules, persist the decisions, then register the routed policies
// in the location registry. Registry entries are append-only history so the
// last step carries no compensation; undoing a migration is a status
// transition, not an erasure.
func (s *Service) routeSteps() []saga.Step {
	return []saga.Step{
		s.step(PipelineRoute, "extract_routing_keys", SvcDocumentStore, SvcRoutingEngine,
			func(ctx context.Context, rc saga.RunContext) error {
				docs, err := s.documentStore(ctx)
				if err != nil {
					return err
				}
				canonical, err := loadArtifact[[]collab.CanonicalRecord](ctx, docs, rc[keyCanonicalDoc])
				if err != nil {
					return err
				}
				engine, err := s.routingEngine(ctx)
				if err != nil {
					return err
				}
				keys := make(map[string]string, len(canonical))
				for _, rec := range canonical {
					key, err := engine.GetRoutingKey(ctx, rec)
					if err != nil {
						return err
					}
					keys[rec.PolicyID] = key
				}
				raw, err := json.Marshal(keys)
				if err != nil {
					return dErrors.Wrap(err, dErrors.CodeInternal, "encode routing keys")
				}
				rc["routing_keys"] = string(raw)
				return nil
			},
			nil,
		),
		s.step(PipelineRoute, "evaluate_rules", SvcRoutingEngine, SvcRoutingEngine,
			func(ctx context.Context, rc saga.RunContext) error {
				var keys map[string]string
				if err := json.Unmarshal([]byte(rc["routing_keys"]), &keys); err != nil {
					return dErrors.Wrap(err, dErrors.CodeInternal, "decode routing keys")
				}
				engine, err := s.routingEngine(ctx)
				if err != nil {
					return err
				}
				decisions := make([]collab.RoutingDecision, 0, len(keys))
				for policyID, key := range keys {
					d, err := engine.EvaluateRouting(ctx, key)
					if err != nil {
						return err
					}
					d.PolicyID = policyID
					decisions = append(decisions, d)
				}
				raw, err := json.Marshal(decisions)
				if err != nil {
					return dErrors.Wrap(err, dErrors.CodeInternal, "encode routing decisions")
				}
				rc[keyDecisions] = string(raw)
				return nil
			},
			nil,
		),
		s.step(PipelineRoute, "persist_routing", SvcRoutingEngine, SvcDocumentStore,
			func(ctx context.Context, rc saga.RunContext) error {
				var decisions []collab.RoutingDecision
				if err := json.Unmarshal([]byte(rc[keyDecisions]), &decisions); err != nil {
					return dErrors.Wrap(err, dErrors.CodeInternal, "decode routing decisions")
				}
				docs, err := s.documentStore(ctx)
				if err != nil {
					return err
				}
				docID := docKey(PipelineRoute, rc[keyRunID], "decisions")
				if err := storeArtifact(ctx, docs, docID, "routing_decisions", decisions, map[string]any{
					"count": len(decisions),
				}); err != nil {
					return err
				}
				rc[keyDecisionsDoc] = docID
				return nil
			},
			func(ctx context.Context, m saga.Milestone) error {
				return s.deleteDocument(ctx, m.Context[keyDecisionsDoc])
			},
		),
		s.step(PipelineRoute, "update_registry", SvcDocumentStore, "policy_registry",
			func(ctx context.Context, rc saga.RunContext) error {
				var decisions []collab.RoutingDecision
				if err := json.Unmarshal([]byte(rc[keyDecisions]), &decisions); err != nil {
					return dErrors.Wrap(err, dErrors.CodeInternal, "decode routing decisions")
				}
				systemID := rc[keySystemID]
				if systemID == "" {
					systemID = "legacy-core"
				}
				for _, d := range decisions {
					_, err := s.registry.RegisterPolicy(ctx, d.PolicyID, models.LocationLegacySystem, systemID, map[string]string{
						"wave":        rc[keyWave],
						"routing_key": d.RoutingKey,
						"destination": d.Destination,
						"run_id":      rc[keyRunID],
					})
					if err != nil {
						return err
					}
				}
				return nil
			},
			nil,
		),
	}
}
