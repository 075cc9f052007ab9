// Package equipment defines the records shared by every tagsync component:
// observations extracted from a drawing, equipment records held by the
// system of record, learned block mappings, projects and run summaries.
package equipment
