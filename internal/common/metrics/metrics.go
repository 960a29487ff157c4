package metrics

const MetricPrefix = "cliffbench_"
