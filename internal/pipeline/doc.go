// Package pipeline runs the per-marker unit of work: write the marker's
// sequences, align them, optionally trim the alignment and infer a gene
// tree.
//
// # Stages
//
// [Pipeline.Process] runs the stages in order for one marker. Each stage
// is a [tool.Stage] and writes into the marker's own directory
// (<workdir>/markers/<marker>/), so concurrent units never share files.
// A stage output is reused from an earlier run when its cache sidecar
// still matches; otherwise the stage runs and the sidecar is committed
// after its output has been validated.
//
// # Failure
//
// A failing stage stops the unit. The [Result] carries the failing stage
// as an [errors.StageError] and is returned, never panicked or propagated
// as an error, so one marker cannot fail the run.
//
// # Usage
//
//	p, _ := pipeline.New(pipeline.Config{
//	    WorkDir: work,
//	    Catalog: cat,
//	    Align:   stages.Align,
//	    Trim:    stages.Trim,
//	    Tree:    stages.Tree,
//	}, pipeline.WithLogger(logger))
//	res := p.Process(ctx, "K00001", records)
package pipeline
