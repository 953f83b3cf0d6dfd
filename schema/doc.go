// Package schema describes the resources the query layer can serve.
//
// An EntitySchema is the exposure contract of one resource type: its ordered
// scalar fields, its relations and its primary key. Schemas are plain data,
// built once at startup and registered in a Registry:
//
//	reg := schema.NewRegistry()
//	reg.MustRegister(&schema.EntitySchema{
//		Name:       "todo",
//		PrimaryKey: "id",
//		Fields: []schema.Field{
//			{Name: "id"},
//			{Name: "title"},
//			{Name: "done", Type: schema.Bool},
//			{Name: "profileId"},
//		},
//		Relations: []schema.Relation{
//			{Name: "profile", Target: "profile", LocalKey: "profileId", ForeignKey: "id"},
//		},
//	})
//
// Route and Table default to the plural of Name ("todos"); columns default to
// the snake_case form of the field name ("profile_id"). Hidden fields are
// stored but never exposed and never part of the allow-list.
package schema
